package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"zoneadmin/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// Auth validates bearer tokens minted by the external auth service and puts
// the resulting Principal into the request context.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(parts[1])
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenInvalidClaims
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			principal, err := extractPrincipal(claims)
			if err != nil {
				http.Error(w, "principal not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractPrincipal(claims jwt.MapClaims) (models.Principal, error) {
	userID, err := claimInt64(claims, "user_id")
	if err != nil {
		return models.Principal{}, err
	}

	role, _ := claims["role"].(string)
	if role == "" {
		return models.Principal{}, fmt.Errorf("role not present")
	}

	// client_id is absent for admins and chiefs without a client record
	clientID, _ := claimInt64(claims, "client_id")

	return models.Principal{
		UserID:   userID,
		ClientID: clientID,
		Role:     role,
	}, nil
}

func claimInt64(claims jwt.MapClaims, key string) (int64, error) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%s not present", key)
	}
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	val := ctx.Value(principalKey)
	if val == nil {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}

// Chain applies middlewares right-to-left around the handler.
func Chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	h := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
