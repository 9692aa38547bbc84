// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv (dotenv files) and github.com/caarlos0/env/v11
// (struct tag parsing) and caches each configuration type after the first
// successful parse, so components can call Load wherever they need their
// settings without re-reading the environment.
//
// # Usage
//
//	type Config struct {
//	    DedupWindow    time.Duration `env:"NOTIFICATIONS_DEDUP_WINDOW" envDefault:"10m"`
//	    ReconnectDelay time.Duration `env:"NOTIFICATIONS_RECONNECT_DELAY" envDefault:"3s"`
//	}
//
//	if err := config.LoadEnv("./deploy/.env"); err != nil {
//	    log.Fatalf("loading env: %v", err)
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// # Error Handling
//
// Sentinel errors can be matched with errors.Is:
//
//   - ErrParsingConfig  – the environment does not satisfy the struct tags.
//   - ErrLoadingEnvFile – a dotenv file could not be read.
//   - ErrNilPointer     – nil pointer passed to Load.
//
// # Testing Helpers
//
// ResetCache clears every cached type; Reload re-parses a single type after the
// process environment changed.
package config
