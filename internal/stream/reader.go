package stream

import (
	"bufio"
	"io"
	"strings"
)

// SSEReader reads server-sent data frames from an upstream response body.
// Reads are incremental, so a slow consumer naturally backpressures the
// upstream connection instead of buffering it.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader wraps an upstream body.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	return &SSEReader{scanner: scanner}
}

// Next returns the next data payload. Comments, event-name lines, and blank
// separators are skipped; "[DONE]" and stream end both surface as io.EOF.
func (r *SSEReader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		if data == "[DONE]" {
			return nil, io.EOF
		}

		return []byte(data), nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}
