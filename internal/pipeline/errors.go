package pipeline

import (
	"fmt"
	"strings"
)

// ConfigurationError marks a request that can never succeed against this
// deployment: unknown model, unroutable family. Never retried.
type ConfigurationError struct {
	Model string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for model %q: %v", e.Model, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// QuotaExhaustedError is terminal quota exhaustion: the named model and its
// whole fallback chain are out of quota.
type QuotaExhaustedError struct {
	Model     string
	Attempted []string
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted for model %q (attempted: %s)", e.Model, strings.Join(e.Attempted, ", "))
}

// IncompatibleHistoryError is an upstream rejection of historical
// thinking/tool_use state that the compatibility filter should have
// prevented. It is surfaced verbatim, never swallowed, so the filter gap can
// be diagnosed.
type IncompatibleHistoryError struct {
	Model   string
	Status  int
	Message string
}

func (e *IncompatibleHistoryError) Error() string {
	return fmt.Sprintf("model %q rejected conversation history (HTTP %d): %s", e.Model, e.Status, e.Message)
}

// UpstreamTransportError is a network or timeout failure talking to a
// provider. Retried via the fallback path up to the hop budget.
type UpstreamTransportError struct {
	Model string
	Err   error
}

func (e *UpstreamTransportError) Error() string {
	return fmt.Sprintf("upstream transport failure for model %q: %v", e.Model, e.Err)
}

func (e *UpstreamTransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is any other terminal upstream rejection.
type UpstreamError struct {
	Model   string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error from model %q (HTTP %d): %s", e.Model, e.Status, e.Message)
}

// StreamError marks a stream that failed after output may already have been
// sent. Partial content is preserved; the pipeline never retries past it.
type StreamError struct {
	Model string
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream from model %q failed: %v", e.Model, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
