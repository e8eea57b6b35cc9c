package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/auth"
	"github.com/dmitrijs2005/userhub/internal/server/models"
)

type ctxKey string

const principalKey ctxKey = "principal"

func withPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the identity set by authenticate.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// authenticate verifies the bearer token and stores the principal in the
// request context.
func authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(common.AuthorizationHeaderName)
			if header == "" {
				writeMessage(w, http.StatusUnauthorized, "no token provided")
				return
			}

			token, ok := strings.CutPrefix(header, common.BearerPrefix)
			if !ok || token == "" {
				writeMessage(w, http.StatusUnauthorized, "no token provided")
				return
			}

			claims, err := auth.ParseToken(token, secret)
			if err != nil {
				if errors.Is(err, common.ErrTokenExpired) {
					writeMessage(w, http.StatusUnauthorized, "token expired")
					return
				}
				writeMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := withPrincipal(r.Context(), models.Principal{UserID: claims.UserID, IsAdmin: claims.IsAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin must run after authenticate.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.IsAdmin {
			writeMessage(w, http.StatusForbidden, "not allowed, only admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimit(limiter *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				writeMessage(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			l.Info(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
