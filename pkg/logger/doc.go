// Package logger builds *slog.Logger values for notifykit services and
// provides attribute helpers so every component names the same fields the
// same way.
//
// New takes functional options. WithEnvironment picks a preset from the
// APP_ENV value: development logs text at debug level, staging and production
// log JSON at info level. Individual settings can be overridden with
// WithFormat, WithLevel, WithOutput and WithAttr.
//
// Records pass through a ContextHandler before reaching the text or JSON
// handler. It runs the registered ContextExtractor functions against the
// context given to the *Context logging methods, which is how request-scoped
// values end up on every line:
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "notifyd"),
//	    logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	logger.SetAsDefault(log)
//
//	log.LogAttrs(ctx, slog.LevelInfo, "Notification stored",
//	    logger.NotificationID(n.ID),
//	    logger.Scope(n.RecipientType, n.RecipientID),
//	)
//
// Identifier helpers such as NotificationID, RecipientID and OrderID return an
// empty attribute for an empty value, and Error returns one for a nil error,
// so callers can pass them unconditionally.
package logger
