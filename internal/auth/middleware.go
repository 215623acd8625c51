package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	roleKey   contextKey = "role"
)

// UserID extracts the authenticated user ID from the request context.
func UserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value(userIDKey).(int64)
	return uid, ok
}

// Role extracts the authenticated user's role from the request context.
func Role(r *http.Request) (models.Role, bool) {
	role, ok := r.Context().Value(roleKey).(models.Role)
	return role, ok
}

// Middleware validates the Bearer token and injects user_id/role into the
// request context.
func Middleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Missing or invalid authorization header"})
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid token claims"})
				return
			}

			uidFloat, ok := claims["user_id"].(float64)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid token claims"})
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, int64(uidFloat))
			if roleStr, ok := claims["role"].(string); ok {
				ctx = context.WithValue(ctx, roleKey, models.Role(roleStr))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose token does not carry the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := Role(r)
		if !ok || role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
