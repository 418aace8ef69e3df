package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/godamri/helix-audit/http/response"
)

// PanicRecovery handles panics in HTTP handlers.
// It logs the stack trace with context and returns a 500 envelope.
// CRITICAL: This does NOT call os.Exit(1). The server must stay alive.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				// Stack goes to the log only, never to the client.
				slog.ErrorContext(r.Context(), "HTTP PANIC RECOVERED",
					"error", fmt.Sprintf("%v", rec),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				response.ErrorJSON(w, r, http.StatusInternalServerError,
					response.ErrSystem, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
