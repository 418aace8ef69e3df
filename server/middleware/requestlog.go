package middleware

import (
	"context"
	"net/http"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/contextx"
)

// RequestAuditMiddleware records one request event per completed HTTP
// request. The client IP is resolved before the handler runs and
// stored on the context, so CRUD and login events recorded deeper in
// the stack inherit it.
//
// remoteAddrHeader overrides IP resolution for deployments where the
// proxy stamps a dedicated header; empty falls back to
// X-Forwarded-For / X-Real-Ip / RemoteAddr.
func RequestAuditMiddleware(recorder *audit.Recorder, filter *audit.URLFilter, remoteAddrHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getRealIP(r)
			if remoteAddrHeader != "" {
				if v := r.Header.Get(remoteAddrHeader); v != "" {
					ip = v
				}
			}

			ctx := contextx.WithRemoteIP(r.Context(), ip)

			next.ServeHTTP(w, r.WithContext(ctx))

			if !filter.Match(r.URL.Path) {
				return
			}

			// The request context is cancelled once the handler chain
			// unwinds; keep its values but detach from cancellation so
			// the capture cannot be aborted mid-write.
			_ = recorder.Request(context.WithoutCancel(ctx), r.Method, r.URL.Path, r.URL.RawQuery)
		})
	}
}
