// Package compat decides whether thinking/tool_use signatures from history
// are valid input for the current target provider. A signature minted by one
// provider family is rejected by another with an "expected thinking" class
// validation error, so on a cross-model switch the signature is dropped while
// the surrounding content is preserved.
package compat

import (
	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// FilterBlock applies the signature compatibility rules to a single block
// for the given target family. The returned bool is false when the block
// should be omitted from the upstream request entirely.
//
// Rules:
//   - signature present and native to the target family: keep verbatim
//   - signature present but foreign or of unknown origin: drop the signature,
//     keep content/input intact
//   - signature absent: forward content only, never fabricate a placeholder
//   - thinking block with no content left after stripping: omit (providers
//     reject empty thinking blocks)
//
// Pure function: the input block is copied, never modified.
func FilterBlock(b message.Block, target registry.Family) (message.Block, bool) {
	if b.Kind != message.KindThinking && b.Kind != message.KindToolUse {
		return b, true
	}

	out := b

	if !signatureCompatible(b, target) {
		out.Signature = nil
	}

	// Stamp the effective source so downstream stages see a block that is
	// either native or explicitly unsigned.
	if out.Signature.Present() {
		out.SourceFamily = target
	} else {
		out.SourceFamily = registry.FamilyUnknown
	}

	if out.Kind == message.KindThinking && out.Thinking == "" && !out.Signature.Present() {
		return message.Block{}, false
	}

	return out, true
}

// signatureCompatible reports whether the block's signature can be forwarded
// to the target family as-is. A missing SourceFamily means the history passed
// through a lossy intermediary; such signatures are never trusted.
func signatureCompatible(b message.Block, target registry.Family) bool {
	return b.Signature.Present() && b.SourceFamily == target
}

// FilterMessage returns a copy of msg with every block filtered for the
// target family. When filtering removes every block, a single empty text
// block is kept so the message itself stays structurally valid.
func FilterMessage(msg message.Message, target registry.Family) message.Message {
	out := message.Message{Role: msg.Role, Content: make([]message.Block, 0, len(msg.Content))}

	for _, b := range msg.Content {
		filtered, keep := FilterBlock(b, target)
		if keep {
			out.Content = append(out.Content, filtered)
		}
	}

	if len(msg.Content) > 0 && len(out.Content) == 0 {
		out.Content = append(out.Content, message.Text(""))
	}

	return out
}

// FilterConversation filters every message for the target family, producing
// a new slice. The caller's conversation is borrowed and left untouched.
func FilterConversation(conversation []message.Message, target registry.Family) []message.Message {
	out := make([]message.Message, 0, len(conversation))
	for _, msg := range conversation {
		out = append(out, FilterMessage(msg, target))
	}

	return out
}
