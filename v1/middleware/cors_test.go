package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(config CORSConfig, method, origin string, headers map[string]string) (*httptest.ResponseRecorder, bool) {
	req := httptest.NewRequest(method, "/api/v1/sessions", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})
	CORSMiddleware(config)(next).ServeHTTP(w, req)
	return w, nextCalled
}

func TestDefaultCORSConfig(t *testing.T) {
	config := DefaultCORSConfig(" https://consent.example.com, http://localhost:3000 ,,")

	assert.Equal(t, []string{"https://consent.example.com", "http://localhost:3000"}, config.AllowedOrigins)
	assert.Contains(t, config.AllowedMethods, "PUT")
	assert.Contains(t, config.AllowedMethods, "DELETE")
	assert.Contains(t, config.AllowedHeaders, "Authorization")
	assert.True(t, config.AllowCredentials)
	assert.Equal(t, 86400, config.MaxAge)
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	config := CORSConfig{
		AllowedOrigins:   []string{"https://consent.example.com"},
		AllowedMethods:   []string{"GET", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           3600,
	}

	w, nextCalled := serveCORS(config, http.MethodGet, "https://consent.example.com", nil)

	assert.True(t, nextCalled)
	assert.Equal(t, "https://consent.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, PUT", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	config := CORSConfig{AllowedOrigins: []string{"https://consent.example.com"}}

	w, nextCalled := serveCORS(config, http.MethodGet, "https://malicious.example.com", nil)

	assert.True(t, nextCalled)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_WildcardOrigin(t *testing.T) {
	config := CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}}

	w, nextCalled := serveCORS(config, http.MethodGet, "https://any.example.com", nil)

	assert.True(t, nextCalled)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PreflightRequest(t *testing.T) {
	config := CORSConfig{
		AllowedOrigins: []string{"https://consent.example.com"},
		AllowedMethods: []string{"GET", "PUT"},
	}

	w, nextCalled := serveCORS(config, http.MethodOptions, "https://consent.example.com",
		map[string]string{"Access-Control-Request-Method": "PUT"})

	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Values("Vary"), "Access-Control-Request-Method")
	assert.Contains(t, w.Header().Values("Vary"), "Access-Control-Request-Headers")
}

func TestCORSMiddleware_PlainOptionsPassesThrough(t *testing.T) {
	config := CORSConfig{AllowedOrigins: []string{"https://consent.example.com"}}

	_, nextCalled := serveCORS(config, http.MethodOptions, "https://consent.example.com", nil)

	assert.True(t, nextCalled)
}

func TestCORSMiddleware_WildcardWithCredentialsPanics(t *testing.T) {
	assert.Panics(t, func() {
		CORSMiddleware(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})
	})
}
