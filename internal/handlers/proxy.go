package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/normalize"
	"github.com/Davincible/modelrelay/internal/pipeline"
	"github.com/Davincible/modelrelay/internal/stream"
)

// ProxyHandler accepts Claude-style completion requests and runs them
// through the fallback pipeline.
type ProxyHandler struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

func NewProxyHandler(p *pipeline.Pipeline, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		pipeline: p,
		logger:   logger,
	}
}

type completionRequest struct {
	Model       string            `json:"model"`
	System      json.RawMessage   `json:"system,omitempty"`
	Messages    []message.Message `json:"messages"`
	Tools       []normalize.Tool  `json:"tools,omitempty"`
	Thinking    *thinkingRequest  `json:"thinking,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature *float64          `json:"temperature,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

type thinkingRequest struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("failed to read request body: %v", err))
		return
	}

	var req completionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	if req.Model == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	if err := message.Validate(req.Messages); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	inputTokens := h.countInputTokens(string(body))

	h.logger.Info("Proxying request",
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", req.Stream,
		"input_tokens", inputTokens,
	)

	preq := pipeline.Request{
		Model:       req.Model,
		System:      decodeSystem(req.System),
		Messages:    req.Messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}

	if req.Thinking != nil && req.Thinking.Type != "disabled" {
		preq.Thinking = &normalize.ThinkingConfig{BudgetTokens: req.Thinking.BudgetTokens}
	}

	result, err := h.pipeline.Execute(r.Context(), preq)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	if req.Stream {
		h.writeStream(w, result)
	} else {
		h.writeCompletion(w, result)
	}
}

// decodeSystem accepts both the plain-string system prompt and the block
// array form, flattening blocks to text.
func decodeSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var system string
	if err := json.Unmarshal(raw, &system); err == nil {
		return system
	}

	var blocks []message.Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var out string
	for _, b := range blocks {
		if b.Kind == message.KindText {
			out += b.Text
		}
	}

	return out
}

func (h *ProxyHandler) writeCompletion(w http.ResponseWriter, result *pipeline.Result) {
	c := result.Completion

	id := c.ID
	if id == "" {
		id = "msg_relay"
	}

	response := map[string]any{
		"id":            id,
		"type":          "message",
		"role":          "assistant",
		"model":         result.Model.ID,
		"content":       c.Content,
		"stop_reason":   string(c.StopReason),
		"stop_sequence": nil,
		"usage":         c.Usage,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to write completion response", "error", err)
	}

	h.logger.Info("Successful response",
		"model", result.Model.ID,
		"attempted", result.Attempt.AttemptedModels,
		"output_tokens", c.Usage.OutputTokens,
	)
}

func (h *ProxyHandler) countInputTokens(text string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		h.logger.Error("Failed to get tiktoken encoding", "error", err)
		return 0
	}
	return len(tke.Encode(text, nil, nil))
}

func (h *ProxyHandler) writePipelineError(w http.ResponseWriter, err error) {
	var (
		configErr    *pipeline.ConfigurationError
		quotaErr     *pipeline.QuotaExhaustedError
		historyErr   *pipeline.IncompatibleHistoryError
		transportErr *pipeline.UpstreamTransportError
		upstreamErr  *pipeline.UpstreamError
	)

	switch {
	case errors.As(err, &configErr):
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", configErr.Error())
	case errors.As(err, &quotaErr):
		h.writeError(w, http.StatusTooManyRequests, "rate_limit_error", quotaErr.Error())
	case errors.As(err, &historyErr):
		// Filter gap: surface the upstream rejection verbatim.
		h.writeError(w, http.StatusBadGateway, "api_error", historyErr.Error())
	case errors.As(err, &transportErr):
		h.writeError(w, http.StatusGatewayTimeout, "api_error", transportErr.Error())
	case errors.As(err, &upstreamErr):
		h.writeError(w, http.StatusBadGateway, "api_error", upstreamErr.Error())
	case errors.Is(err, io.EOF):
		h.writeError(w, http.StatusBadGateway, "api_error", "upstream closed connection")
	default:
		h.writeError(w, http.StatusInternalServerError, "api_error", err.Error())
	}
}

func (h *ProxyHandler) writeError(w http.ResponseWriter, status int, errType, msg string) {
	h.logger.Error("Request failed", "status", status, "type", errType, "message", msg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload := map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    errType,
			"message": msg,
		},
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to write error response", "error", err)
	}
}

// writeStream renders the normalized event stream as Claude-flavored SSE.
func (h *ProxyHandler) writeStream(w http.ResponseWriter, result *pipeline.Result) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var (
		stopReason message.StopReason = message.StopEndTurn
		usage      *message.Usage
		errored    bool
	)

	for ev := range result.Events {
		switch ev.Type {
		case stream.EventMessageStart:
			id := ev.MessageID
			if id == "" {
				id = "msg_relay"
			}

			h.writeSSE(w, "message_start", map[string]any{
				"type": "message_start",
				"message": map[string]any{
					"id":            id,
					"type":          "message",
					"role":          "assistant",
					"model":         result.Model.ID,
					"content":       []any{},
					"stop_reason":   nil,
					"stop_sequence": nil,
					"usage":         message.Usage{},
				},
			})

		case stream.EventBlockStart:
			h.writeSSE(w, "content_block_start", map[string]any{
				"type":          "content_block_start",
				"index":         ev.Index,
				"content_block": blockStartPayload(ev, result),
			})

		case stream.EventBlockDelta:
			h.writeSSE(w, "content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": ev.Index,
				"delta": blockDeltaPayload(ev),
			})

		case stream.EventBlockStop:
			h.writeSSE(w, "content_block_stop", map[string]any{
				"type":  "content_block_stop",
				"index": ev.Index,
			})

		case stream.EventMessageStop:
			stopReason = ev.StopReason
			usage = ev.Usage

		case stream.EventError:
			// Partial output already written stays written; the caller gets
			// a distinct terminal marker instead of a normal stop.
			errored = true

			h.writeSSE(w, "error", map[string]any{
				"type": "error",
				"error": map[string]any{
					"type":    "api_error",
					"message": ev.Err.Error(),
				},
			})
		}
	}

	if errored {
		return
	}

	delta := map[string]any{
		"type": "message_delta",
		"delta": map[string]any{
			"stop_reason":   string(stopReason),
			"stop_sequence": nil,
		},
	}

	if usage != nil {
		delta["usage"] = usage
	}

	h.writeSSE(w, "message_delta", delta)
	h.writeSSE(w, "message_stop", map[string]any{"type": "message_stop"})

	h.logger.Info("Completed streaming response",
		"model", result.Model.ID,
		"attempted", result.Attempt.AttemptedModels,
	)
}

func blockStartPayload(ev stream.Event, result *pipeline.Result) map[string]any {
	switch ev.Kind {
	case message.KindThinking:
		return map[string]any{
			"type":          "thinking",
			"thinking":      "",
			"source_family": string(result.Model.Family),
		}
	case message.KindToolUse:
		return map[string]any{
			"type":          "tool_use",
			"id":            ev.ToolID,
			"name":          ev.ToolName,
			"input":         map[string]any{},
			"source_family": string(result.Model.Family),
		}
	default:
		return map[string]any{"type": "text", "text": ""}
	}
}

func blockDeltaPayload(ev stream.Event) map[string]any {
	switch {
	case ev.Signature.Present():
		return map[string]any{"type": "signature_delta", "signature": string(ev.Signature)}
	case ev.PartialJSON != "":
		return map[string]any{"type": "input_json_delta", "partial_json": ev.PartialJSON}
	case ev.Kind == message.KindThinking:
		return map[string]any{"type": "thinking_delta", "thinking": ev.Text}
	default:
		return map[string]any{"type": "text_delta", "text": ev.Text}
	}
}

func (h *ProxyHandler) writeSSE(w http.ResponseWriter, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		fmt.Fprint(w, "event: error\ndata: {\"error\":\"failed to marshal data\"}\n\n")
	} else {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
