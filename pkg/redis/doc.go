// Package redis connects to Redis with go-redis/v9.
//
// The notification pipeline uses Redis to share duplicate-suppression keys
// between processes (see notifications.RedisDedupCache). This package only
// establishes and pings the connection:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	dedup, err := notifications.NewRedisDedupCache(client, "notify:dedup:")
//
// Healthcheck returns a check closure for readiness endpoints. Config fields
// are populated from environment variables via github.com/caarlos0/env.
//
// Errors wrap the underlying go-redis error with errors.Join, so both the
// package sentinel and the cause match errors.Is.
package redis
