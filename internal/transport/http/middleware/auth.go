package middleware

import (
	"context"
	"net/http"
	"strings"

	"payhub/internal/domain/auth"
	"payhub/internal/transport/http/api"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// SessionInfo is what the session store resolves for a live session. The
// database row is the source of truth, so a revoked session dies on the next
// request even if its JWT is still within its lifetime.
type SessionInfo struct {
	UserID             string
	CompanyID          string
	Role               string
	ImpersonateCompany string
}

type SessionStore interface {
	Lookup(ctx context.Context, tokenHash string) (SessionInfo, bool, error)
}

func Auth(secret string, sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			user := auth.UserContext{
				UserID:    claims.UserID,
				CompanyID: claims.CompanyID,
				Role:      auth.NormalizeRole(claims.Role),
				SessionID: claims.SessionID,
			}

			if sessions != nil {
				info, ok, err := sessions.Lookup(r.Context(), auth.HashToken(claims.SessionID))
				if err != nil {
					// A store failure is not a revoked session; the caller
					// should retry, not re-authenticate.
					api.Fail(w, http.StatusServiceUnavailable, "session_unavailable", "session store unavailable", GetRequestID(r.Context()))
					return
				}
				if !ok {
					next.ServeHTTP(w, r)
					return
				}
				user.UserID = info.UserID
				user.CompanyID = info.CompanyID
				user.Role = auth.NormalizeRole(info.Role)
				user.ImpersonateCompany = info.ImpersonateCompany
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
