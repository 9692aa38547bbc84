// Package binder turns HTTP requests into typed values.
//
// Each constructor returns a func(r *http.Request, v any) error that fills the
// struct pointed to by v from one part of the request:
//
//   - BindJSON decodes an application/json body strictly (unknown fields and
//     trailing data are rejected).
//   - BindQuery copies URL query parameters into fields tagged `query:"name"`.
//
// Binders are meant to be chained by handler.Wrap. A binder that has nothing to
// read, such as BindJSON on a request without a body, returns
// ErrBinderNotApplicable and the chain moves on.
//
//	type listRequest struct {
//	    RecipientType string `query:"recipient_type"`
//	    Limit         int    `query:"limit"`
//	}
//
//	var req listRequest
//	if err := binder.BindQuery()(r, &req); err != nil {
//	    // errors.Is(err, binder.ErrInvalidQuery)
//	}
//
// Query fields may be strings (including named string types), signed and
// unsigned integers, floats, bools, pointers to those, and slices of them.
// Slice parameters accept repeated keys and comma-separated values.
package binder
