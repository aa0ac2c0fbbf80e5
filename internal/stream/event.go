// Package stream translates upstream provider responses, streaming and
// non-streaming, into a normalized event vocabulary. Translators are fed
// parsed wire chunks and never perform network I/O or retries themselves.
package stream

import (
	"github.com/Davincible/modelrelay/internal/message"
)

// EventType enumerates the normalized stream events emitted to callers.
type EventType string

const (
	EventMessageStart EventType = "message_start"
	EventBlockStart   EventType = "block_start"
	EventBlockDelta   EventType = "block_delta"
	EventBlockStop    EventType = "block_stop"
	EventMessageStop  EventType = "message_stop"
	EventError        EventType = "error"
)

// Event is one normalized stream event. Which fields are set depends on Type.
type Event struct {
	Type EventType

	// EventMessageStart
	MessageID string
	Model     string

	// Block events
	Index int
	Kind  message.BlockKind

	// EventBlockStart for tool_use
	ToolID   string
	ToolName string

	// EventBlockDelta
	Text        string            // text and thinking deltas
	Signature   message.Signature // thinking signature delta
	PartialJSON string            // tool_use input delta

	// EventMessageStop
	StopReason message.StopReason
	Usage      *message.Usage

	// EventError. Partial content already emitted stays emitted; this is a
	// terminal marker, not a retraction.
	Err error
}
