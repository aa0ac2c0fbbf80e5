package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/modelrelay/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_ClaudeRequestShape(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_01"}`))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	client.SetEndpoint(registry.FamilyClaude, Endpoint{BaseURL: server.URL, APIKey: "sk-test"})

	model := registry.ModelDescriptor{ID: "claude-sonnet-4", Family: registry.FamilyClaude}

	resp, err := client.Do(context.Background(), model, []byte(`{"model":"claude-sonnet-4"}`), false)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/v1/messages", captured.URL.Path)
	assert.Equal(t, "sk-test", captured.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", captured.Header.Get("anthropic-version"))
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"model":"claude-sonnet-4"}`, string(capturedBody))
}

func TestClient_GeminiRequestShape(t *testing.T) {
	var captured *http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	client.SetEndpoint(registry.FamilyGemini, Endpoint{BaseURL: server.URL + "/", APIKey: "goog-key"})

	model := registry.ModelDescriptor{ID: "gemini-2.5-pro", Family: registry.FamilyGemini}

	// Non-streaming uses generateContent
	resp, err := client.Do(context.Background(), model, []byte(`{}`), false)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", captured.URL.Path)
	assert.Equal(t, "goog-key", captured.Header.Get("x-goog-api-key"))

	// Streaming switches action and asks for SSE
	resp, err = client.Do(context.Background(), model, []byte(`{}`), true)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "/v1beta/models/gemini-2.5-pro:streamGenerateContent", captured.URL.Path)
	assert.Equal(t, "sse", captured.URL.Query().Get("alt"))
	assert.Equal(t, "text/event-stream", captured.Header.Get("Accept"))
}

func TestClient_UnknownFamily(t *testing.T) {
	client := NewClient(testLogger())

	model := registry.ModelDescriptor{ID: "m", Family: registry.FamilyClaude}
	_, err := client.Do(context.Background(), model, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no endpoint configured")
}

func TestClient_GzipDecompression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(`{"id":"msg_gz"}`))
		gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/json")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := NewClient(testLogger())
	client.SetEndpoint(registry.FamilyClaude, Endpoint{BaseURL: server.URL, APIKey: "k"})

	model := registry.ModelDescriptor{ID: "m", Family: registry.FamilyClaude}

	resp, err := client.Do(context.Background(), model, []byte(`{}`), false)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"msg_gz"}`, string(body))
}

func TestResponse_Streaming(t *testing.T) {
	header := http.Header{}
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	assert.True(t, (&Response{Header: header}).Streaming())

	header = http.Header{}
	header.Set("Content-Type", "application/json")
	assert.False(t, (&Response{Header: header}).Streaming())
}
