// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request value already filled by the
// binders passed to Wrap, and returns a Response that renders itself:
//
//	list := handler.Wrap(
//		func(ctx handler.Context, req listRequest) handler.Response {
//			items, err := svc.List(ctx, req.filter())
//			if err != nil {
//				return handler.JSONError(err)
//			}
//			return handler.JSON(items)
//		},
//		handler.WithBinders[listRequest](binder.BindQuery()),
//		handler.WithErrorHandler[listRequest](errs),
//	)
//
// JSON and JSONError share one envelope, JSONResponse. Empty answers 204.
// SSE streams Datastar signal patches for as long as its StreamHandler runs.
//
// Bind errors, render errors and nil responses go to the ErrorHandler.
// NewErrorHandler builds one that logs the failure and writes the JSON error
// envelope, using WithErrorMapper to turn application errors into HTTPError
// or ValidationError values.
package handler
