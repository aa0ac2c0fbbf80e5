package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/Davincible/modelrelay/internal/compat"
	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// geminiNormalizer builds generateContent request bodies.
type geminiNormalizer struct{}

func (geminiNormalizer) Family() registry.Family {
	return registry.FamilyGemini
}

func (n geminiNormalizer) Body(req Request) ([]byte, error) {
	body := map[string]any{}

	if req.System != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": req.System}},
		}
	}

	filtered := compat.FilterConversation(req.Messages, registry.FamilyGemini)
	toolNames := toolNamesByID(req.Messages)

	contents := make([]any, 0, len(filtered))
	for i, msg := range filtered {
		content, err := n.convertMessage(msg, toolNames)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		contents = append(contents, content)
	}

	body["contents"] = contents

	generationConfig := map[string]any{}

	if max := maxTokensFor(req); max > 0 {
		generationConfig["maxOutputTokens"] = max
	}

	if req.Temperature != nil {
		generationConfig["temperature"] = *req.Temperature
	}

	if req.Thinking != nil && req.Model.SupportsThinking {
		generationConfig["thinkingConfig"] = map[string]any{
			"includeThoughts": true,
			"thinkingBudget":  req.Thinking.BudgetTokens,
		}
	}

	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}

	if len(req.Tools) > 0 && req.Model.SupportsToolUse {
		declarations := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			decl := map[string]any{"name": t.Name}

			if t.Description != "" {
				decl["description"] = t.Description
			}

			if len(t.InputSchema) > 0 {
				decl["parameters"] = t.InputSchema
			}

			declarations = append(declarations, decl)
		}

		body["tools"] = []any{map[string]any{"functionDeclarations": declarations}}
	}

	return json.Marshal(body)
}

func (n geminiNormalizer) convertMessage(msg message.Message, toolNames map[string]string) (map[string]any, error) {
	role := "user"
	if msg.Role == message.RoleAssistant {
		role = "model"
	}

	parts := make([]any, 0, len(msg.Content))

	for _, block := range msg.Content {
		part, err := n.convertBlock(block, toolNames)
		if err != nil {
			return nil, err
		}

		if part != nil {
			parts = append(parts, part)
		}
	}

	return map[string]any{"role": role, "parts": parts}, nil
}

func (n geminiNormalizer) convertBlock(block message.Block, toolNames map[string]string) (map[string]any, error) {
	switch block.Kind {
	case message.KindText:
		return map[string]any{"text": block.Text}, nil

	case message.KindThinking:
		// Signed thought parts resume reasoning; unsigned content is
		// demoted to plain text so the request stays valid.
		if !block.Signature.Present() {
			if block.Thinking == "" {
				return nil, nil
			}

			return map[string]any{"text": block.Thinking}, nil
		}

		return map[string]any{
			"text":             block.Thinking,
			"thought":          true,
			"thoughtSignature": string(block.Signature),
		}, nil

	case message.KindToolUse:
		functionCall := map[string]any{"name": block.ToolName}

		if len(block.ToolInput) > 0 {
			functionCall["args"] = json.RawMessage(block.ToolInput)
		}

		part := map[string]any{"functionCall": functionCall}

		if block.Signature.Present() {
			part["thoughtSignature"] = string(block.Signature)
		}

		return part, nil

	case message.KindToolResult:
		name := toolNames[block.ToolUseID]
		if name == "" {
			name = block.ToolUseID
		}

		return map[string]any{
			"functionResponse": map[string]any{
				"name":     name,
				"response": toolResultResponse(block.ToolContent),
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown block kind %q", block.Kind)
	}
}

// toolResultResponse wraps plain-string tool output in a structured object,
// which the protobuf-backed API requires.
func toolResultResponse(content json.RawMessage) any {
	if len(content) == 0 {
		return map[string]any{}
	}

	var str string
	if err := json.Unmarshal(content, &str); err == nil {
		return map[string]any{"content": str}
	}

	return json.RawMessage(content)
}

// toolNamesByID maps tool_use ids to function names so tool results can be
// attributed to the declaration that produced them.
func toolNamesByID(conversation []message.Message) map[string]string {
	names := make(map[string]string)

	for _, msg := range conversation {
		for _, block := range msg.Content {
			if block.Kind == message.KindToolUse && block.ToolID != "" {
				names[block.ToolID] = block.ToolName
			}
		}
	}

	return names
}
