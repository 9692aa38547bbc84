package notifications

import "time"

// Config holds the pipeline tunables. Field tags follow github.com/caarlos0/env,
// so the struct can be loaded with config.Load.
type Config struct {
	OrderWindow       time.Duration `env:"NOTIFY_DEDUP_ORDER_WINDOW" envDefault:"2m"`            // Lookback window for intents correlated with an order.
	DefaultWindow     time.Duration `env:"NOTIFY_DEDUP_WINDOW" envDefault:"10m"`                 // Lookback window for all other intents.
	OrderCacheTTL     time.Duration `env:"NOTIFY_DEDUP_ORDER_CACHE_TTL" envDefault:"2m"`         // How long an order-correlated key stays in the dedup cache.
	DefaultCacheTTL   time.Duration `env:"NOTIFY_DEDUP_CACHE_TTL" envDefault:"5m"`               // How long any other key stays in the dedup cache.
	TitlePrefixLength int           `env:"NOTIFY_DEDUP_TITLE_PREFIX" envDefault:"50"`            // Title runes that take part in the dedup key.
	CacheCapacity     int           `env:"NOTIFY_DEDUP_CACHE_CAPACITY" envDefault:"10000"`       // Max keys held by the in-memory dedup cache.
	RedisKeyPrefix    string        `env:"NOTIFY_DEDUP_REDIS_PREFIX" envDefault:"notify:dedup:"` // Key prefix for the shared Redis dedup cache.

	ReconnectDelay   time.Duration `env:"NOTIFY_FEED_RECONNECT_DELAY" envDefault:"3s"`  // Wait between reconnect attempts.
	ConnectTimeout   time.Duration `env:"NOTIFY_FEED_CONNECT_TIMEOUT" envDefault:"10s"` // Upper bound for a single connect attempt.
	SeenCapacity     int           `env:"NOTIFY_FEED_SEEN_CAPACITY" envDefault:"1024"`  // Recently delivered ids remembered per subscription.
	BackfillLimit    int           `env:"NOTIFY_FEED_BACKFILL_LIMIT" envDefault:"100"`  // Max records replayed after a reconnect.
	MemoryFeedBuffer int           `env:"NOTIFY_MEMORY_FEED_BUFFER" envDefault:"256"`   // Per-subscriber buffer of the in-memory insert feed.

	ToastDuration time.Duration `env:"NOTIFY_TOAST_DURATION" envDefault:"10s"` // Auto-dismiss delay for pop-up notifications.
	ListCapacity  int           `env:"NOTIFY_LIST_CAPACITY" envDefault:"100"`  // Max entries kept by a ListSink.
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		OrderWindow:       2 * time.Minute,
		DefaultWindow:     10 * time.Minute,
		OrderCacheTTL:     2 * time.Minute,
		DefaultCacheTTL:   5 * time.Minute,
		TitlePrefixLength: DefaultTitlePrefixLength,
		CacheCapacity:     10000,
		RedisKeyPrefix:    "notify:dedup:",
		ReconnectDelay:    3 * time.Second,
		ConnectTimeout:    10 * time.Second,
		SeenCapacity:      1024,
		BackfillLimit:     100,
		MemoryFeedBuffer:  256,
		ToastDuration:     10 * time.Second,
		ListCapacity:      100,
	}
}

// withDefaults replaces non-positive values with their defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OrderWindow <= 0 {
		c.OrderWindow = d.OrderWindow
	}
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = d.DefaultWindow
	}
	if c.OrderCacheTTL <= 0 {
		c.OrderCacheTTL = d.OrderCacheTTL
	}
	if c.DefaultCacheTTL <= 0 {
		c.DefaultCacheTTL = d.DefaultCacheTTL
	}
	if c.TitlePrefixLength <= 0 {
		c.TitlePrefixLength = d.TitlePrefixLength
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = d.RedisKeyPrefix
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = d.SeenCapacity
	}
	if c.BackfillLimit <= 0 {
		c.BackfillLimit = d.BackfillLimit
	}
	if c.MemoryFeedBuffer <= 0 {
		c.MemoryFeedBuffer = d.MemoryFeedBuffer
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = d.ToastDuration
	}
	if c.ListCapacity <= 0 {
		c.ListCapacity = d.ListCapacity
	}
	return c
}
