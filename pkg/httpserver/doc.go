// Package httpserver runs an http.Handler with context-driven graceful
// shutdown and provides liveness and readiness checks.
//
// Run blocks until its context is cancelled (typically by signal.NotifyContext
// in main) or Shutdown is called. Request contexts derive from the Run context,
// so long-lived streams end when the server stops. Listen failures are wrapped
// with ErrStart and shutdown failures with ErrShutdown.
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log, 2*time.Second,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//	))
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		return err
//	}
package httpserver
