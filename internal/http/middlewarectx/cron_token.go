package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/password"
	"github.com/bunyanhq/billing/internal/lib/sl"
)

// CronTokenMiddleware guards the cron trigger endpoints. The external
// scheduler presents the plaintext token in X-Cron-Token; the config only
// carries its bcrypt hash. Failures are logged as security events and
// answered 401 without detail.
func CronTokenMiddleware(tokenHash string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.CronTokenMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token := r.Header.Get("X-Cron-Token")
			if token == "" {
				log.Error("security event: cron trigger without token",
					slog.String("remote_addr", r.RemoteAddr))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			if err := password.CompareHash(tokenHash, token); err != nil {
				log.Error("security event: cron trigger with bad token",
					slog.String("remote_addr", r.RemoteAddr), sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
