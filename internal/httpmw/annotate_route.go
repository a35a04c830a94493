package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WithRouteContext installs an empty chi route context when none exists
// so middleware outside the router can read the matched pattern after the
// router ran. chi reuses a context it finds instead of allocating its own.
func WithRouteContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.RouteContext(r.Context()) == nil {
			ctx := context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext())
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RoutePattern is the matched chi pattern, or "" when nothing matched.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// AnnotateHTTPRoute names the server span after the matched route once the
// request is served. Unmatched requests keep the generic span name so 404
// scans do not blow up span cardinality.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return WithRouteContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		pat := RoutePattern(r)
		if pat == "" {
			return
		}
		span.SetAttributes(attribute.String("http.route", pat))
		span.SetName(r.Method + " " + pat)
	}))
}
