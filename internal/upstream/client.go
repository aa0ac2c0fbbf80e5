// Package upstream performs the HTTP calls to provider APIs: per-family
// endpoint and auth header construction, response decompression, and
// classification of upstream error bodies.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/Davincible/modelrelay/internal/registry"
)

const anthropicVersion = "2023-06-01"

// Endpoint is the base URL and credential for one provider family.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Client sends normalized request bodies to upstream providers. Timeouts are
// carried by the request context, not the http.Client, so the pipeline owns
// the per-attempt deadline.
type Client struct {
	httpClient *http.Client
	endpoints  map[registry.Family]Endpoint
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		endpoints:  make(map[registry.Family]Endpoint),
		logger:     logger,
	}
}

// SetEndpoint registers the endpoint for a provider family.
func (c *Client) SetEndpoint(family registry.Family, e Endpoint) {
	c.endpoints[family] = e
}

// Response is a decompressed upstream response. Body must be closed by the
// caller; closing it releases the underlying connection, which is how caller
// disconnects cancel in-flight upstream work.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Streaming reports whether the response body is an event stream.
func (r *Response) Streaming() bool {
	contentType := r.Header.Get("Content-Type")
	return strings.Contains(contentType, "text/event-stream") || strings.Contains(contentType, "stream")
}

// Do sends one attempt to the model's provider.
func (c *Client) Do(ctx context.Context, model registry.ModelDescriptor, body []byte, stream bool) (*Response, error) {
	endpoint, ok := c.endpoints[model.Family]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for provider family %q", model.Family)
	}

	req, err := c.buildRequest(ctx, model, endpoint, body, stream)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("upstream request",
		"model", model.ID,
		"family", string(model.Family),
		"url", req.URL.String(),
		"stream", stream,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	decompressed, err := decompressBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("decompress upstream response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       decompressed,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, model registry.ModelDescriptor, endpoint Endpoint, body []byte, stream bool) (*http.Request, error) {
	var (
		url     string
		headers = http.Header{}
	)

	base := strings.TrimSuffix(endpoint.BaseURL, "/")

	switch model.Family {
	case registry.FamilyClaude:
		url = base + "/v1/messages"
		headers.Set("x-api-key", endpoint.APIKey)
		headers.Set("anthropic-version", anthropicVersion)

	case registry.FamilyGemini:
		action := ":generateContent"
		if stream {
			action = ":streamGenerateContent?alt=sse"
		}

		url = base + "/v1beta/models/" + model.ID + action
		headers.Set("x-goog-api-key", endpoint.APIKey)

	default:
		return nil, fmt.Errorf("no request builder for provider family %q", model.Family)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header = headers
	req.Header.Set("Content-Type", "application/json")

	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	return req, nil
}

// decompressBody wraps the response body according to Content-Encoding.
func decompressBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}

		return &wrappedBody{reader: gzipReader, closer: resp.Body}, nil
	case "br":
		return &wrappedBody{reader: brotli.NewReader(resp.Body), closer: resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

// wrappedBody reads from a decompressing reader while closing the original
// connection body.
type wrappedBody struct {
	reader io.Reader
	closer io.Closer
}

func (w *wrappedBody) Read(p []byte) (int, error) {
	return w.reader.Read(p)
}

func (w *wrappedBody) Close() error {
	return w.closer.Close()
}
