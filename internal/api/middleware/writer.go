package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// wrapWriter records status and size. An already wrapped writer is reused so
// the logging, tracing and metrics layers see the same counters.
func wrapWriter(w http.ResponseWriter, r *http.Request) chimiddleware.WrapResponseWriter {
	if ww, ok := w.(chimiddleware.WrapResponseWriter); ok {
		return ww
	}
	return chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

// statusOf reports 200 for handlers that never write a header.
func statusOf(ww chimiddleware.WrapResponseWriter) int {
	if code := ww.Status(); code != 0 {
		return code
	}
	return http.StatusOK
}

// headerWritten reports whether a response has already started.
func headerWritten(w http.ResponseWriter) bool {
	ww, ok := w.(chimiddleware.WrapResponseWriter)
	return ok && ww.Status() != 0
}

// routePattern returns the matched chi pattern ("/v1/routes/with-detour").
// It is empty outside a chi router and for unmatched paths; only valid once
// the request has been routed.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
