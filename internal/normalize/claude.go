package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/Davincible/modelrelay/internal/compat"
	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// claudeNormalizer builds Anthropic Messages API request bodies.
type claudeNormalizer struct{}

func (claudeNormalizer) Family() registry.Family {
	return registry.FamilyClaude
}

func (n claudeNormalizer) Body(req Request) ([]byte, error) {
	body := map[string]any{
		"model":      req.Model.ID,
		"max_tokens": maxTokensFor(req),
	}

	if req.System != "" {
		body["system"] = req.System
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	if req.Stream {
		body["stream"] = true
	}

	if req.Thinking != nil && req.Model.SupportsThinking {
		body["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": req.Thinking.BudgetTokens,
		}
	}

	filtered := compat.FilterConversation(req.Messages, registry.FamilyClaude)

	messages := make([]any, 0, len(filtered))
	for i, msg := range filtered {
		converted, err := n.convertMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		messages = append(messages, converted)
	}

	body["messages"] = messages

	if len(req.Tools) > 0 && req.Model.SupportsToolUse {
		tools := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tool := map[string]any{"name": t.Name}

			if t.Description != "" {
				tool["description"] = t.Description
			}

			if len(t.InputSchema) > 0 {
				tool["input_schema"] = t.InputSchema
			}

			tools = append(tools, tool)
		}

		body["tools"] = tools
	}

	return json.Marshal(body)
}

func (n claudeNormalizer) convertMessage(msg message.Message) (map[string]any, error) {
	content := make([]any, 0, len(msg.Content))

	for _, block := range msg.Content {
		converted, err := n.convertBlock(block)
		if err != nil {
			return nil, err
		}

		if converted != nil {
			content = append(content, converted)
		}
	}

	return map[string]any{
		"role":    string(msg.Role),
		"content": content,
	}, nil
}

func (n claudeNormalizer) convertBlock(block message.Block) (map[string]any, error) {
	switch block.Kind {
	case message.KindText:
		return map[string]any{"type": "text", "text": block.Text}, nil

	case message.KindThinking:
		// An unsigned thinking block is not acceptable to this family;
		// carry its content forward as plain text instead.
		if !block.Signature.Present() {
			if block.Thinking == "" {
				return nil, nil
			}

			return map[string]any{"type": "text", "text": block.Thinking}, nil
		}

		return map[string]any{
			"type":      "thinking",
			"thinking":  block.Thinking,
			"signature": string(block.Signature),
		}, nil

	case message.KindToolUse:
		input := any(map[string]any{})
		if len(block.ToolInput) > 0 {
			input = json.RawMessage(block.ToolInput)
		}

		return map[string]any{
			"type":  "tool_use",
			"id":    block.ToolID,
			"name":  block.ToolName,
			"input": input,
		}, nil

	case message.KindToolResult:
		result := map[string]any{
			"type":        "tool_result",
			"tool_use_id": block.ToolUseID,
		}

		if len(block.ToolContent) > 0 {
			result["content"] = json.RawMessage(block.ToolContent)
		}

		return result, nil

	default:
		return nil, fmt.Errorf("unknown block kind %q", block.Kind)
	}
}

func maxTokensFor(req Request) int {
	if req.MaxTokens > 0 && (req.Model.MaxTokens == 0 || req.MaxTokens <= req.Model.MaxTokens) {
		return req.MaxTokens
	}

	if req.Model.MaxTokens > 0 {
		return req.Model.MaxTokens
	}

	return req.MaxTokens
}
