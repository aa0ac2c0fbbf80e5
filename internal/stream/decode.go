package stream

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// Completion is a fully decoded non-streaming upstream response, expressed
// in the provider-agnostic block model. Thinking and tool_use blocks are
// stamped with the family that produced them so a later request can tell
// whether their signatures are native.
type Completion struct {
	ID         string
	Model      string
	Content    []message.Block
	StopReason message.StopReason
	Usage      message.Usage
}

// Decode translates a non-streaming upstream response body.
func Decode(family registry.Family, body []byte) (*Completion, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON in upstream response")
	}

	switch family {
	case registry.FamilyClaude:
		return decodeClaude(gjson.ParseBytes(body))
	case registry.FamilyGemini:
		return decodeGemini(gjson.ParseBytes(body))
	default:
		return nil, fmt.Errorf("no response decoder for provider family %q", family)
	}
}

func decodeClaude(data gjson.Result) (*Completion, error) {
	if errObj := data.Get("error"); errObj.Exists() {
		return nil, fmt.Errorf("upstream error (%s): %s",
			errObj.Get("type").String(), errObj.Get("message").String())
	}

	c := &Completion{
		ID:         data.Get("id").String(),
		Model:      data.Get("model").String(),
		StopReason: CanonicalStopReason(registry.FamilyClaude, data.Get("stop_reason").String()),
		Usage: message.Usage{
			InputTokens:  int(data.Get("usage.input_tokens").Int()),
			OutputTokens: int(data.Get("usage.output_tokens").Int()),
		},
	}

	var decodeErr error

	data.Get("content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			c.Content = append(c.Content, message.Text(block.Get("text").String()))
		case "thinking":
			c.Content = append(c.Content, message.Thinking(
				block.Get("thinking").String(),
				message.Signature(block.Get("signature").String()),
				registry.FamilyClaude,
			))
		case "tool_use":
			c.Content = append(c.Content, message.ToolUse(
				block.Get("id").String(),
				block.Get("name").String(),
				rawOrNil(block.Get("input")),
				nil,
				registry.FamilyClaude,
			))
		default:
			decodeErr = fmt.Errorf("unknown content block type %q in response", block.Get("type").String())
			return false
		}

		return true
	})

	if decodeErr != nil {
		return nil, decodeErr
	}

	if len(c.Content) == 0 {
		c.Content = []message.Block{message.Text("")}
	}

	return c, nil
}

func decodeGemini(data gjson.Result) (*Completion, error) {
	if errObj := data.Get("error"); errObj.Exists() {
		return nil, fmt.Errorf("upstream error (%s): %s",
			errObj.Get("status").String(), errObj.Get("message").String())
	}

	candidate := data.Get("candidates.0")
	if !candidate.Exists() {
		return nil, fmt.Errorf("no candidates in upstream response")
	}

	c := &Completion{
		ID:         data.Get("responseId").String(),
		Model:      data.Get("modelVersion").String(),
		StopReason: CanonicalStopReason(registry.FamilyGemini, candidate.Get("finishReason").String()),
		Usage: message.Usage{
			InputTokens:  int(data.Get("usageMetadata.promptTokenCount").Int()),
			OutputTokens: int(data.Get("usageMetadata.candidatesTokenCount").Int()),
		},
	}

	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if fc := part.Get("functionCall"); fc.Exists() {
			c.Content = append(c.Content, message.ToolUse(
				"toolu_"+uuid.NewString(),
				fc.Get("name").String(),
				rawOrNil(fc.Get("args")),
				message.Signature(part.Get("thoughtSignature").String()),
				registry.FamilyGemini,
			))

			return true
		}

		text := part.Get("text").String()
		if text == "" {
			return true
		}

		if part.Get("thought").Bool() {
			c.Content = append(c.Content, message.Thinking(
				text,
				message.Signature(part.Get("thoughtSignature").String()),
				registry.FamilyGemini,
			))
		} else {
			c.Content = append(c.Content, message.Text(text))
		}

		return true
	})

	if len(c.Content) == 0 {
		c.Content = []message.Block{message.Text("")}
	}

	return c, nil
}

func rawOrNil(result gjson.Result) json.RawMessage {
	if !result.Exists() {
		return nil
	}

	return json.RawMessage(result.Raw)
}
