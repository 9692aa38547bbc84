// Command notifyd runs the notification pipeline behind a small HTTP API.
//
// Producers POST intents to /notifications; clients list, count and acknowledge
// records, or follow /notifications/stream for live Datastar signal patches.
// The storage backend is chosen with NOTIFY_BACKEND (memory, postgres, mongo).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendMongo    = "mongo"
)

type appConfig struct {
	Env          string `env:"APP_ENV" envDefault:"development"`
	Name         string `env:"APP_NAME" envDefault:"notifyd"`
	Backend      string `env:"NOTIFY_BACKEND" envDefault:"memory"`
	RedisDedup   bool   `env:"NOTIFY_REDIS_DEDUP" envDefault:"false"`
	StreamBuffer int    `env:"NOTIFY_STREAM_BUFFER" envDefault:"32"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("notifyd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.Name),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	)
	logger.SetAsDefault(log)

	var cfg notifications.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	store, checks, closeStore, err := openStorage(ctx, app.Backend, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []notifications.ServiceOption{
		notifications.WithConfig(cfg),
		notifications.WithLogger(log),
		notifications.WithMetrics(notifications.NewMetrics(reg)),
	}
	if app.RedisDedup {
		dedup, check, closeRedis, err := openRedisDedup(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRedis()
		opts = append(opts, notifications.WithDedupCache(dedup))
		checks = append(checks, check)
	}

	svc := notifications.NewService(store, opts...)
	defer svc.Close()

	feed := notifications.NewBroadcastSink(app.StreamBuffer,
		notifications.WithBroadcastLogger(log.With(logger.Component("stream"))),
	)
	defer feed.Close()

	// One wildcard feed per recipient type republishes every insert to the
	// connected stream clients and logs the interrupting ones.
	alerts := notifications.SinkFunc(func(ctx context.Context, n notifications.Notification) error {
		log.LogAttrs(ctx, slog.LevelInfo, "Interrupting notification",
			logger.NotificationID(n.ID),
			logger.Scope(n.RecipientType, n.RecipientID),
			logger.Priority(n.Priority),
		)
		return nil
	})
	for _, t := range []notifications.RecipientType{
		notifications.RecipientStore,
		notifications.RecipientAdmin,
		notifications.RecipientCustomer,
	} {
		if _, err := svc.Subscribe(ctx, notifications.Scope{RecipientType: t}, notifications.Sinks{
			List:  feed,
			Toast: alerts,
		}); err != nil {
			return fmt.Errorf("subscribe %s feed: %w", t, err)
		}
	}

	a := &api{svc: svc, feed: feed, logger: log.With(logger.Component("api"))}
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, newRouter(a, reg, checks...))
}

func openStorage(ctx context.Context, backend string, cfg notifications.Config, log *slog.Logger) (notifications.Storage, []httpserver.Check, func(), error) {
	switch backend {
	case backendMemory, "":
		store := notifications.NewMemoryStorage(notifications.WithMemoryFeedBuffer(cfg.MemoryFeedBuffer))
		return store, nil, func() { _ = store.Close() }, nil

	case backendPostgres:
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, nil, nil, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.MigrateFS(ctx, pool, notifications.Migrations, notifications.MigrationsDir, pgCfg.MigrationsTable, log); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		store := notifications.NewPostgresStorage(pool,
			notifications.WithPostgresLogger(log.With(logger.Component("postgres"))),
		)
		check := httpserver.Check{Name: backendPostgres, Fn: pg.Healthcheck(pool)}
		return store, []httpserver.Check{check}, pool.Close, nil

	case backendMongo:
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return nil, nil, nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, mongoCfg, "")
		if err != nil {
			return nil, nil, nil, err
		}
		closeDB := func() { _ = db.Client().Disconnect(context.Background()) }
		store := notifications.NewMongoStorage(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		check := httpserver.Check{Name: backendMongo, Fn: mongo.Healthcheck(db.Client())}
		return store, []httpserver.Check{check}, closeDB, nil

	default:
		return nil, nil, nil, errors.New("unknown NOTIFY_BACKEND: " + backend)
	}
}

func openRedisDedup(ctx context.Context, cfg notifications.Config) (notifications.DedupCache, httpserver.Check, func(), error) {
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, httpserver.Check{}, nil, err
	}
	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, httpserver.Check{}, nil, err
	}
	dedup, err := notifications.NewRedisDedupCache(client, cfg.RedisKeyPrefix)
	if err != nil {
		_ = client.Close()
		return nil, httpserver.Check{}, nil, err
	}
	check := httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)}
	return dedup, check, func() { _ = client.Close() }, nil
}
