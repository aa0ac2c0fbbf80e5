package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// TelemetryBlockerMiddleware swallows telemetry and metrics calls that
// clients aim at the relay when it impersonates a provider base URL, so they
// never reach the proxy pipeline or a real upstream.
type TelemetryBlockerMiddleware struct {
	logger *slog.Logger
}

func NewTelemetryBlockerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	tbm := &TelemetryBlockerMiddleware{
		logger: logger,
	}

	return tbm.middleware
}

func (tbm *TelemetryBlockerMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tbm.isTelemetryRequest(r.URL.Path) {
			tbm.sendAcceptedResponse(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (tbm *TelemetryBlockerMiddleware) sendAcceptedResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	if _, err := w.Write([]byte(`{"success":true}`)); err != nil {
		tbm.logger.Debug("Failed to write telemetry block response", "error", err)
	}
}

func (tbm *TelemetryBlockerMiddleware) isTelemetryRequest(path string) bool {
	telemetryPaths := []string{
		"/v1/initialize",
		"/v1/log_event",
		"/v1/rgstr",
		"/statsig",
		"/telemetry",
		"/analytics",
		"/api/claude_code/metrics",
		"/claude_code/metrics",
	}

	for _, telemetryPath := range telemetryPaths {
		if strings.HasPrefix(path, telemetryPath) {
			return true
		}
	}

	return false
}
