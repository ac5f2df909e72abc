package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/utils"
	"github.com/xmtp/allow-list-management/v1/wallet"
)

// WalletTokenVerifier turns a bearer token into the wallet address it authenticates
type WalletTokenVerifier interface {
	VerifyTokenAndExtractWalletAddress(ctx context.Context, token string) (string, error)
}

// JWTAuthMiddleware provides HTTP middleware for JWT authentication
type JWTAuthMiddleware struct {
	verifier WalletTokenVerifier
}

// NewJWTAuthMiddleware creates a new JWT authentication middleware
func NewJWTAuthMiddleware(verifier WalletTokenVerifier) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate validates the bearer token and places the wallet address on the request context
func (m *JWTAuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Authorization header is required")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			utils.RespondWithError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		if tokenString == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Token is required")
			return
		}

		address, err := m.verifier.VerifyTokenAndExtractWalletAddress(r.Context(), tokenString)
		if err != nil {
			slog.Warn("Token verification failed", "error", err, "path", r.URL.Path)
			utils.RespondWithError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid or expired token")
			return
		}

		slog.Debug("Wallet authenticated", "address", address)
		next.ServeHTTP(w, r.WithContext(wallet.WithAddress(r.Context(), address)))
	})
}
