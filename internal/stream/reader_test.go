package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReader_DataFrames(t *testing.T) {
	raw := "event: message_start\n" +
		"data: {\"type\":\"message_start\"}\n" +
		"\n" +
		": keep-alive comment\n" +
		"data: {\"type\":\"message_stop\"}\n" +
		"\n"

	reader := NewSSEReader(strings.NewReader(raw))

	chunk, err := reader.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_start"}`, string(chunk))

	chunk, err = reader.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_stop"}`, string(chunk))

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEReader_DoneSentinel(t *testing.T) {
	raw := "data: {\"x\":1}\n\ndata: [DONE]\n\ndata: {\"x\":2}\n\n"

	reader := NewSSEReader(strings.NewReader(raw))

	chunk, err := reader.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(chunk))

	// [DONE] terminates the stream even with data behind it
	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEReader_EmptyStream(t *testing.T) {
	reader := NewSSEReader(strings.NewReader(""))

	_, err := reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEReader_SkipsNonDataLines(t *testing.T) {
	raw := "id: 42\nretry: 1000\nevent: ping\ndata: {\"type\":\"ping\"}\n\n"

	reader := NewSSEReader(strings.NewReader(raw))

	chunk, err := reader.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(chunk))
}
