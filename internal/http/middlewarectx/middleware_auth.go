// Package middlewarectx contains the HTTP middleware: JWT account
// resolution, the cron trigger-token check and rate limiting.
//
// JWTMiddleware validates the token from the Authorization header with the
// secret shared with the main application and puts the account UID into the
// request context for the handlers.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	libjwt "github.com/bunyanhq/billing/internal/lib/jwt"
	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
)

// Key is the type for request context keys.
type Key string

// AccountUID is the context key for the authenticated account UID.
const AccountUID Key = "account_uid"

// TokenParser describes the JWT parsing the middleware needs.
type TokenParser interface {
	ParseToken(tokenStr string) (*libjwt.CustomClaims, error)
}

// JWTMiddleware returns middleware that validates the bearer token and
// stores the account UID in the request context. Invalid tokens get
// HTTP 401.
func JWTMiddleware(maker TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := maker.ParseToken(tokenStr)
			if err != nil || claims.AccountUID == "" {
				if err != nil {
					log.Error("invalid or expired token", sl.Err(err))
				} else {
					log.Error("token has no account uid")
				}
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), AccountUID, claims.AccountUID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
