package message

import (
	"encoding/json"
	"fmt"

	"github.com/Davincible/modelrelay/internal/registry"
)

// Wire form of a block, Claude-flavored. The source_family field is a proxy
// extension: assistant turns echoed back through the proxy carry it so a
// later request can tell whether a signature is native to the target model.
type blockJSON struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Thinking     string `json:"thinking,omitempty"`
	Signature    string `json:"signature,omitempty"`
	SourceFamily string `json:"source_family,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// MarshalJSON renders the block in its Claude-flavored wire form.
func (b Block) MarshalJSON() ([]byte, error) {
	w := blockJSON{Type: string(b.Kind)}

	switch b.Kind {
	case KindText:
		w.Text = b.Text
	case KindThinking:
		w.Thinking = b.Thinking
		w.Signature = string(b.Signature)
		w.SourceFamily = string(b.SourceFamily)
	case KindToolUse:
		w.ID = b.ToolID
		w.Name = b.ToolName
		w.Input = b.ToolInput
		w.Signature = string(b.Signature)
		w.SourceFamily = string(b.SourceFamily)
	case KindToolResult:
		w.ToolUseID = b.ToolUseID
		w.Content = b.ToolContent
	default:
		return nil, fmt.Errorf("unknown block kind %q", b.Kind)
	}

	return json.Marshal(w)
}

// UnmarshalJSON accepts the Claude-flavored wire form.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch BlockKind(w.Type) {
	case KindText:
		*b = Text(w.Text)
	case KindThinking:
		*b = Thinking(w.Thinking, Signature(w.Signature), registry.Family(w.SourceFamily))
	case KindToolUse:
		*b = ToolUse(w.ID, w.Name, w.Input, Signature(w.Signature), registry.Family(w.SourceFamily))
	case KindToolResult:
		*b = ToolResult(w.ToolUseID, w.Content)
	default:
		return fmt.Errorf("unknown content block type %q", w.Type)
	}

	return nil
}

// MarshalJSON renders a message with its content block array.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Role    Role    `json:"role"`
		Content []Block `json:"content"`
	}{Role: m.Role, Content: m.Content})
}

// UnmarshalJSON accepts both the block-array content form and the plain
// string shorthand clients commonly send for simple user turns.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Role = w.Role
	m.Content = nil

	if len(w.Content) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(w.Content, &text); err == nil {
		m.Content = []Block{Text(text)}
		return nil
	}

	var blocks []Block
	if err := json.Unmarshal(w.Content, &blocks); err != nil {
		return fmt.Errorf("message content must be a string or block array: %w", err)
	}

	m.Content = blocks

	return nil
}
