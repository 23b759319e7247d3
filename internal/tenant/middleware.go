package tenant

import (
	"context"
	"net/http"

	"github.com/appetiteclub/apt"
)

// HeaderName is the request header carrying the tenant identifier. The
// edge proxy is expected to set it from the request host or path.
const HeaderName = "X-Tenant-ID"

type ctxKey struct{}

// FromRequest returns the tenant context resolved by Middleware. The
// second value is false when the request did not pass through it.
func FromRequest(r *http.Request) (Context, bool) {
	tn, ok := r.Context().Value(ctxKey{}).(Context)
	return tn, ok
}

// WithContext is used by tests to inject a tenant context directly.
func WithContext(ctx context.Context, tn Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tn)
}

// Middleware resolves the tenant header against the directory and stores
// the resulting context on the request. Requests without the header pass
// through untouched; tenant-scoped handlers reject them individually, which
// keeps health and metrics endpoints reachable.
func Middleware(dir Directory, logger apt.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderName)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			tn, err := dir.Resolve(r.Context(), id)
			if err != nil {
				logger.Errorf("cannot resolve tenant %q: %v", id, err)
				apt.RespondError(w, http.StatusNotFound, "Unknown tenant")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tn)))
		})
	}
}
