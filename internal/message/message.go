// Package message defines the provider-agnostic conversation model the proxy
// translates between wire formats. Conversations are borrowed from the
// caller: nothing in this package or its consumers mutates them.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Davincible/modelrelay/internal/registry"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind tags the content block union.
type BlockKind string

const (
	KindText       BlockKind = "text"
	KindThinking   BlockKind = "thinking"
	KindToolUse    BlockKind = "tool_use"
	KindToolResult BlockKind = "tool_result"
)

// Signature is an opaque continuation blob some providers attach to thinking
// and tool_use blocks. Its contents are provider-internal: it is only ever
// passed through whole or dropped whole, never parsed.
type Signature []byte

// Present reports whether a signature was recorded at all.
func (s Signature) Present() bool {
	return len(s) > 0
}

// Equal compares two signatures byte-for-byte.
func (s Signature) Equal(other Signature) bool {
	return bytes.Equal(s, other)
}

// Block is the tagged union over conversation content. Only the fields for
// the tagged kind are meaningful.
type Block struct {
	Kind BlockKind

	// KindText
	Text string

	// KindThinking
	Thinking string

	// KindThinking and KindToolUse: opaque signature plus the family of the
	// model that produced the block, when known.
	Signature    Signature
	SourceFamily registry.Family

	// KindToolUse
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// KindToolResult
	ToolUseID   string
	ToolContent json.RawMessage
}

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content []Block
}

// Text builds a text block.
func Text(s string) Block {
	return Block{Kind: KindText, Text: s}
}

// Thinking builds a thinking block. Signature and source may be empty when
// the block passed through a lossy intermediary.
func Thinking(content string, sig Signature, source registry.Family) Block {
	return Block{Kind: KindThinking, Thinking: content, Signature: sig, SourceFamily: source}
}

// ToolUse builds a tool_use block.
func ToolUse(id, name string, input json.RawMessage, sig Signature, source registry.Family) Block {
	return Block{Kind: KindToolUse, ToolID: id, ToolName: name, ToolInput: input, Signature: sig, SourceFamily: source}
}

// ToolResult builds a tool_result block.
func ToolResult(toolUseID string, content json.RawMessage) Block {
	return Block{Kind: KindToolResult, ToolUseID: toolUseID, ToolContent: content}
}

// Validate checks conversation-level invariants: roles are known and every
// tool_result references a tool_use emitted earlier in the conversation.
func Validate(conversation []Message) error {
	seenToolUse := make(map[string]bool)

	for i, msg := range conversation {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			return fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}

		for j, block := range msg.Content {
			switch block.Kind {
			case KindText, KindThinking:
			case KindToolUse:
				if block.ToolID == "" {
					return fmt.Errorf("message %d block %d: tool_use without id", i, j)
				}

				seenToolUse[block.ToolID] = true
			case KindToolResult:
				if !seenToolUse[block.ToolUseID] {
					return fmt.Errorf("message %d block %d: tool_result references unknown tool_use id %q", i, j, block.ToolUseID)
				}
			default:
				return fmt.Errorf("message %d block %d: unknown block kind %q", i, j, block.Kind)
			}
		}
	}

	return nil
}
