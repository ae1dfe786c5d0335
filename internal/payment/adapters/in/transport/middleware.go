package transport

import (
	"context"
	"net/http"

	"rodae/internal/model"
	"rodae/internal/shared/auth"
	"rodae/internal/shared/logger"
)

type contextKey string

const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyUserEmail contextKey = "user_email"
	ContextKeyUserRole  contextKey = "user_role"
)

// TokenValidator — то, что middleware нужно от auth.JWTService
type TokenValidator interface {
	ParseBearer(header string) (*auth.Claims, error)
}

// JWTMiddleware проверяет Bearer токен и кладет пользователя в контекст
func JWTMiddleware(jwt TokenValidator, log *logger.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := jwt.ParseBearer(r.Header.Get("Authorization"))
			if err != nil {
				log.Warn(logger.Entry{
					Action:  "jwt_validation_failed",
					Message: err.Error(),
					Error:   &logger.ErrObj{Msg: err.Error()},
					Additional: map[string]any{
						"path": r.URL.Path,
					},
				})
				respondError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextKeyUserEmail, claims.Email)
			ctx = context.WithValue(ctx, ContextKeyUserRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin пропускает только роль ADMIN; ставится после JWTMiddleware
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, role := userFrom(r.Context()); role != model.RoleAdmin {
			respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func userFrom(ctx context.Context) (userID, role string) {
	userID, _ = ctx.Value(ContextKeyUserID).(string)
	role, _ = ctx.Value(ContextKeyUserRole).(string)
	return userID, role
}
