package handler

import (
	"context"
	"errors"
	"go-auth-api/common"
	"go-auth-api/model"
	"go-auth-api/service"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	UserEmailKey contextKey = "userEmail"
	ClaimsKey    contextKey = "claims"
)

// ClaimsFromContext returns the access-token claims attached by
// Authenticator.
func ClaimsFromContext(ctx context.Context) (*model.AppClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*model.AppClaims)
	return claims, ok
}

// Authenticator gates protected routes on a valid bearer access token.
type Authenticator struct {
	tokens *service.TokenService
}

func NewAuthenticator(tokens *service.TokenService) *Authenticator {
	return &Authenticator{tokens: tokens}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			err := common.NewAppError(http.StatusUnauthorized, "Authorization header is required", nil)
			err.Send(w)
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" || headerParts[1] == "" {
			err := common.NewAppError(http.StatusUnauthorized, "Invalid authorization header format", nil)
			err.Send(w)
			return
		}

		claims, err := a.tokens.Verify(headerParts[1], model.TokenTypeAccess)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, service.ErrTokenExpired) {
				msg = "Token expired"
			}
			appErr := common.NewAppError(http.StatusUnauthorized, msg, err)
			appErr.Send(w)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, UserEmailKey, claims.Email)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
