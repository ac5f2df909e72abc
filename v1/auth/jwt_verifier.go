// Package auth verifies the bearer tokens that identify a wallet.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xmtp/allow-list-management/internal/monitoring"
)

const jwksRefreshInterval = time.Hour

// JWKS represents the JSON Web Key Set structure
type JWKS struct {
	Keys []JSONWebKey `json:"keys"`
}

// JSONWebKey represents a single key in the JWKS
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWTVerifierConfig holds configuration for the JWT verifier
type JWTVerifierConfig struct {
	JWKSUrl  string
	Issuer   string
	Audience string
	// WalletClaim is the claim holding the wallet address; "sub" is the fallback
	WalletClaim string
}

// JWTVerifier verifies RS256 tokens against keys published at a JWKS endpoint
type JWTVerifier struct {
	config        JWTVerifierConfig
	keys          map[string]*rsa.PublicKey
	keyMutex      sync.RWMutex
	lastFetchTime time.Time
	httpClient    *http.Client
}

// NewJWTVerifier creates a new JWT verifier. Keys are fetched on first use or by Refresh.
func NewJWTVerifier(config JWTVerifierConfig) (*JWTVerifier, error) {
	if config.JWKSUrl == "" {
		return nil, fmt.Errorf("JWKS URL is required")
	}
	if config.Issuer == "" {
		return nil, fmt.Errorf("token issuer is required")
	}
	if config.WalletClaim == "" {
		config.WalletClaim = "wallet_address"
	}
	return &JWTVerifier{
		config:     config,
		keys:       make(map[string]*rsa.PublicKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Refresh fetches the JWKS unless it was fetched within the last hour
func (jv *JWTVerifier) Refresh(ctx context.Context) error {
	jv.keyMutex.Lock()
	defer jv.keyMutex.Unlock()

	if time.Since(jv.lastFetchTime) < jwksRefreshInterval && len(jv.keys) > 0 {
		return nil
	}
	return jv.fetchJWKSLocked(ctx)
}

// fetchJWKSLocked replaces the key set; callers hold keyMutex
func (jv *JWTVerifier) fetchJWKSLocked(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jv.config.JWKSUrl, nil)
	if err != nil {
		return fmt.Errorf("failed to create JWKS request: %w", err)
	}

	start := time.Now()
	resp, err := jv.httpClient.Do(req)
	monitoring.RecordExternalCall("jwks", "fetch", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to unmarshal JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		publicKey, err := buildRSAPublicKey(key)
		if err != nil {
			slog.Warn("Failed to build RSA public key", "kid", key.Kid, "error", err)
			continue
		}
		keys[key.Kid] = publicKey
	}

	jv.keys = keys
	jv.lastFetchTime = time.Now()
	slog.Info("JWKS refreshed", "key_count", len(keys))
	return nil
}

// buildRSAPublicKey constructs an RSA public key from a JWK
func buildRSAPublicKey(key JSONWebKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, fmt.Errorf("empty modulus or exponent")
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// getPublicKey returns the key for kid, refetching the JWKS once when the kid is unknown
func (jv *JWTVerifier) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	jv.keyMutex.RLock()
	key, exists := jv.keys[kid]
	jv.keyMutex.RUnlock()
	if exists {
		return key, nil
	}

	jv.keyMutex.Lock()
	defer jv.keyMutex.Unlock()

	// another goroutine may have refreshed while we waited
	if key, exists = jv.keys[kid]; exists {
		return key, nil
	}
	if err := jv.fetchJWKSLocked(ctx); err != nil {
		return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
	}
	if key, exists = jv.keys[kid]; !exists {
		return nil, fmt.Errorf("key with kid '%s' not found in JWKS", kid)
	}
	return key, nil
}

// VerifyToken verifies signature, expiry, issuer and, when configured, audience
func (jv *JWTVerifier) VerifyToken(ctx context.Context, tokenString string) (*jwt.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(jv.config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if jv.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(jv.config.Audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token missing 'kid' header")
		}
		return jv.getPublicKey(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	return token, nil
}

// VerifyTokenAndExtractWalletAddress verifies the token and returns the wallet
// address from the configured claim, falling back to "sub".
func (jv *JWTVerifier) VerifyTokenAndExtractWalletAddress(ctx context.Context, tokenString string) (string, error) {
	token, err := jv.VerifyToken(ctx, tokenString)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	if address, ok := claims[jv.config.WalletClaim].(string); ok && strings.TrimSpace(address) != "" {
		return address, nil
	}
	if sub, err := claims.GetSubject(); err == nil && strings.TrimSpace(sub) != "" {
		return sub, nil
	}
	return "", fmt.Errorf("%s claim not found or empty in token", jv.config.WalletClaim)
}
