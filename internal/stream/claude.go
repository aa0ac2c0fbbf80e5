package stream

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// claudeTranslator consumes Anthropic Messages streaming events. The wire
// vocabulary is already close to the normalized one; the work here is
// validation, stop-reason canonicalization, and usage accounting.
type claudeTranslator struct {
	blockKinds map[int]message.BlockKind
	stopReason message.StopReason
	usage      message.Usage
	stopped    bool
}

func newClaudeTranslator() *claudeTranslator {
	return &claudeTranslator{
		blockKinds: make(map[int]message.BlockKind),
		stopReason: message.StopEndTurn,
	}
}

func (t *claudeTranslator) Family() registry.Family {
	return registry.FamilyClaude
}

func (t *claudeTranslator) Translate(chunk []byte) ([]Event, error) {
	if !gjson.ValidBytes(chunk) {
		return nil, fmt.Errorf("invalid JSON in upstream stream chunk")
	}

	data := gjson.ParseBytes(chunk)
	eventType := data.Get("type").String()

	switch eventType {
	case "ping":
		return nil, nil

	case "message_start":
		t.usage.InputTokens = int(data.Get("message.usage.input_tokens").Int())

		return []Event{{
			Type:      EventMessageStart,
			MessageID: data.Get("message.id").String(),
			Model:     data.Get("message.model").String(),
		}}, nil

	case "content_block_start":
		index := int(data.Get("index").Int())
		block := data.Get("content_block")

		kind := message.BlockKind(block.Get("type").String())
		switch kind {
		case message.KindText, message.KindThinking, message.KindToolUse:
		default:
			return nil, fmt.Errorf("content_block_start with unknown type %q", kind)
		}

		t.blockKinds[index] = kind

		return []Event{{
			Type:     EventBlockStart,
			Index:    index,
			Kind:     kind,
			ToolID:   block.Get("id").String(),
			ToolName: block.Get("name").String(),
		}}, nil

	case "content_block_delta":
		index := int(data.Get("index").Int())
		delta := data.Get("delta")

		ev := Event{
			Type:  EventBlockDelta,
			Index: index,
			Kind:  t.blockKinds[index],
		}

		switch delta.Get("type").String() {
		case "text_delta":
			ev.Text = delta.Get("text").String()
		case "thinking_delta":
			ev.Text = delta.Get("thinking").String()
		case "signature_delta":
			ev.Signature = message.Signature(delta.Get("signature").String())
		case "input_json_delta":
			ev.PartialJSON = delta.Get("partial_json").String()
		default:
			return nil, fmt.Errorf("unknown delta type %q", delta.Get("type").String())
		}

		return []Event{ev}, nil

	case "content_block_stop":
		index := int(data.Get("index").Int())

		return []Event{{
			Type:  EventBlockStop,
			Index: index,
			Kind:  t.blockKinds[index],
		}}, nil

	case "message_delta":
		if reason := data.Get("delta.stop_reason"); reason.Exists() {
			t.stopReason = CanonicalStopReason(registry.FamilyClaude, reason.String())
		}

		if out := data.Get("usage.output_tokens"); out.Exists() {
			t.usage.OutputTokens = int(out.Int())
		}

		return nil, nil

	case "message_stop":
		t.stopped = true
		usage := t.usage

		return []Event{{
			Type:       EventMessageStop,
			StopReason: t.stopReason,
			Usage:      &usage,
		}}, nil

	case "error":
		return []Event{{
			Type: EventError,
			Err: fmt.Errorf("upstream error (%s): %s",
				data.Get("error.type").String(), data.Get("error.message").String()),
		}}, nil

	default:
		// Unrecognized event types are skipped rather than failing the
		// stream; providers add event kinds without notice.
		return nil, nil
	}
}

func (t *claudeTranslator) Finish() []Event {
	if t.stopped {
		return nil
	}

	usage := t.usage

	return []Event{{
		Type:       EventMessageStop,
		StopReason: t.stopReason,
		Usage:      &usage,
	}}
}
