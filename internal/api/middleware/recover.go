// internal/api/middleware/recover.go
package middleware

import (
	"fmt"
	"net/http"

	"github.com/newthinker/pricefeed/internal/api/response"
	"go.uber.org/zap"
)

// Recoverer turns handler panics into a 500 JSON error.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", w.Header().Get("X-Request-ID")),
					)
					response.Error(w, http.StatusInternalServerError, fmt.Errorf("%v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
