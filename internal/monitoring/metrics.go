// Package monitoring records HTTP, external call and business metrics through
// OpenTelemetry and exposes them in Prometheus format or over OTLP.
package monitoring

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	initOnce sync.Once
	initErr  error
)

var (
	// routesMu protects routes and routeTemplates
	routesMu sync.RWMutex
	// routes holds static routes that are reported as-is
	routes = make(map[string]bool)
	// routeTemplates holds split templates such as /api/v1/sessions/{sessionId}
	routeTemplates = make([][]string, 0)
)

// ensureInitialized initializes metrics with the default config on first use.
// ENABLE_OBSERVABILITY=false or OTEL_METRICS_ENABLED=false turns metrics off.
func ensureInitialized() {
	initOnce.Do(func() {
		if !IsObservabilityEnabled() {
			slog.Info("Observability disabled via environment variable, skipping initialization")
			initErr = errors.New("observability disabled via environment variable")
			return
		}

		serviceName := getEnvOrDefault("SERVICE_NAME", "allow-list-management")
		initErr = Initialize(DefaultConfig(serviceName))
		if initErr != nil {
			slog.Error("Failed to initialize OpenTelemetry metrics, metrics will be disabled",
				"error", initErr,
				"service", serviceName)
		}
	})
}

// IsInitialized reports whether metrics were initialized successfully.
func IsInitialized() bool {
	ensureInitialized()
	return initErr == nil
}

// IsObservabilityEnabled checks ENABLE_OBSERVABILITY and OTEL_METRICS_ENABLED
func IsObservabilityEnabled() bool {
	return getEnvBoolOrDefault("ENABLE_OBSERVABILITY", true) &&
		getEnvBoolOrDefault("OTEL_METRICS_ENABLED", true)
}

// RegisterRoutes registers routes for label normalization. Segments written as
// {name} or :name are placeholders and match any single path segment.
//
// Example: RegisterRoutes([]string{"/api/v1/health", "/api/v1/sessions/{sessionId}"})
func RegisterRoutes(routesList []string) {
	routesMu.Lock()
	defer routesMu.Unlock()

	for _, route := range routesList {
		parts := splitPath(route)
		isTemplate := false
		for _, p := range parts {
			if isPlaceholder(p) {
				isTemplate = true
				break
			}
		}
		if isTemplate {
			routeTemplates = append(routeTemplates, parts)
		} else {
			routes["/"+strings.Join(parts, "/")] = true
		}
	}
}

// Handler returns the metrics HTTP handler
func Handler() http.Handler {
	ensureInitialized()
	return otelHandler()
}

// HTTPMetricsMiddleware wraps an HTTP handler to record request metrics
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	ensureInitialized()
	return otelHTTPMetricsMiddleware(next)
}

// RecordExternalCall records a call to the messaging ledger, the social
// resolver, Redis or any other collaborator outside the process.
func RecordExternalCall(target, operation string, duration time.Duration, err error) {
	ensureInitialized()
	otelRecordExternalCall(target, operation, duration, err)
}

// RecordBusinessEvent records a business event such as a permission change
func RecordBusinessEvent(action, outcome string) {
	ensureInitialized()
	otelRecordBusinessEvent(action, outcome)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizeRoute maps a request path onto its registered route or template.
// Anything unregistered is reported as "unknown" to keep label cardinality bounded.
func normalizeRoute(path string) string {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "/"
	}
	fullPath := "/" + strings.Join(parts, "/")

	routesMu.RLock()
	defer routesMu.RUnlock()

	if routes[fullPath] {
		return fullPath
	}
	for _, template := range routeTemplates {
		if matchesTemplate(parts, template) {
			return "/" + strings.Join(template, "/")
		}
	}
	return "unknown"
}

func matchesTemplate(pathParts, templateParts []string) bool {
	if len(pathParts) != len(templateParts) {
		return false
	}
	for i := range pathParts {
		if isPlaceholder(templateParts[i]) {
			continue
		}
		if pathParts[i] != templateParts[i] {
			return false
		}
	}
	return true
}

func isPlaceholder(segment string) bool {
	if strings.HasPrefix(segment, ":") && len(segment) > 1 {
		return true
	}
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") && len(segment) > 2
}

func splitPath(path string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "true" || value == "1" || value == "yes" || value == "on"
}
