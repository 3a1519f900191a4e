package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Context keys (exported so other packages can read the verified identity)
type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// TokenValidator is what we need from the credential service. The interface
// keeps 'middleware' decoupled from 'user'.
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle verifies the session token and injects the identity into the request
// context. Rejection terminates the attempt before any upgrade happens, so an
// unauthenticated websocket never reaches the hub.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on websocket handshakes, so the
		// token may arrive as a query parameter instead.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"remote": r.RemoteAddr,
				"path":   r.URL.Path,
			}).WithError(err).Debug("rejected credential")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, UsernameKey, username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
