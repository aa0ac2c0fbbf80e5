package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

func geminiModel() registry.ModelDescriptor {
	return registry.ModelDescriptor{
		ID:               "gemini-2.5-pro",
		Family:           registry.FamilyGemini,
		SupportsThinking: true,
		SupportsToolUse:  true,
		MaxTokens:        65536,
	}
}

func TestGeminiBody_BasicRequest(t *testing.T) {
	temp := 0.3
	req := Request{
		Model:       geminiModel(),
		System:      "You are concise",
		MaxTokens:   2048,
		Temperature: &temp,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("Hello")}},
			{Role: message.RoleAssistant, Content: []message.Block{message.Text("Hi there")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "You are concise", parsed.Get("systemInstruction.parts.0.text").String())
	assert.Equal(t, int64(2048), parsed.Get("generationConfig.maxOutputTokens").Int())
	assert.Equal(t, 0.3, parsed.Get("generationConfig.temperature").Float())

	// Assistant turns map to the "model" role on this wire
	assert.Equal(t, "user", parsed.Get("contents.0.role").String())
	assert.Equal(t, "model", parsed.Get("contents.1.role").String())
	assert.Equal(t, "Hi there", parsed.Get("contents.1.parts.0.text").String())

	// No model field in the body; the model id lives in the URL
	assert.False(t, parsed.Get("model").Exists())
}

func TestGeminiBody_ThinkingConfig(t *testing.T) {
	req := Request{
		Model:     geminiModel(),
		MaxTokens: 4096,
		Thinking:  &ThinkingConfig{BudgetTokens: 8192},
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("think")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.True(t, parsed.Get("generationConfig.thinkingConfig.includeThoughts").Bool())
	assert.Equal(t, int64(8192), parsed.Get("generationConfig.thinkingConfig.thinkingBudget").Int())
}

func TestGeminiBody_NativeThoughtSignaturePassthrough(t *testing.T) {
	sig := message.Signature("CvoHAXLI2nzx")
	req := Request{
		Model:     geminiModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("continue")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.Thinking("prior thought", sig, registry.FamilyGemini),
			}},
			{Role: message.RoleUser, Content: []message.Block{message.Text("go")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	part := gjson.GetBytes(body, "contents.1.parts.0")
	assert.True(t, part.Get("thought").Bool())
	assert.Equal(t, "prior thought", part.Get("text").String())
	assert.Equal(t, "CvoHAXLI2nzx", part.Get("thoughtSignature").String())
}

func TestGeminiBody_ClaudeSignatureStripped(t *testing.T) {
	req := Request{
		Model:     geminiModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("hi")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.Thinking("claude reasoning", message.Signature("claude-sig"), registry.FamilyClaude),
				message.Text("answer"),
			}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "claude-sig")

	// Stripped thinking is demoted to a plain text part, not a thought part
	part := gjson.GetBytes(body, "contents.1.parts.0")
	assert.Equal(t, "claude reasoning", part.Get("text").String())
	assert.False(t, part.Get("thought").Exists())
	assert.False(t, part.Get("thoughtSignature").Exists())
}

func TestGeminiBody_ToolLoop(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}}}`)
	req := Request{
		Model:     geminiModel(),
		MaxTokens: 1024,
		Tools:     []Tool{{Name: "bash", Description: "Run a shell command", InputSchema: schema}},
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("Run ls -la")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.ToolUse("toolu_01", "bash", json.RawMessage(`{"command":"ls -la"}`), message.Signature("gsig"), registry.FamilyGemini),
			}},
			{Role: message.RoleUser, Content: []message.Block{
				message.ToolResult("toolu_01", json.RawMessage(`"total 8"`)),
			}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "bash", parsed.Get("tools.0.functionDeclarations.0.name").String())
	assert.Equal(t, "object", parsed.Get("tools.0.functionDeclarations.0.parameters.type").String())

	call := parsed.Get("contents.1.parts.0")
	assert.Equal(t, "bash", call.Get("functionCall.name").String())
	assert.Equal(t, "ls -la", call.Get("functionCall.args.command").String())
	assert.Equal(t, "gsig", call.Get("thoughtSignature").String(), "native tool signature is kept")

	// Results are attributed by function name, not tool_use id
	response := parsed.Get("contents.2.parts.0.functionResponse")
	assert.Equal(t, "bash", response.Get("name").String())
	assert.Equal(t, "total 8", response.Get("response.content").String(), "string output is wrapped in a structured object")
}

func TestGeminiBody_StructuredToolResultPassedThrough(t *testing.T) {
	req := Request{
		Model:     geminiModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("go")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.ToolUse("toolu_02", "get_weather", json.RawMessage(`{"city":"Oslo"}`), nil, registry.FamilyGemini),
			}},
			{Role: message.RoleUser, Content: []message.Block{
				message.ToolResult("toolu_02", json.RawMessage(`{"temp":12,"unit":"C"}`)),
			}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	response := gjson.GetBytes(body, "contents.2.parts.0.functionResponse.response")
	assert.Equal(t, int64(12), response.Get("temp").Int())
}

func TestGeminiBody_CrossFamilyIdempotent(t *testing.T) {
	// Normalizing the same conversation twice produces the same wire body;
	// the filter is stable under repeated application.
	req := Request{
		Model:     geminiModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("hi")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.Thinking("claude thought", message.Signature("claude-sig"), registry.FamilyClaude),
				message.Text("answer"),
			}},
		},
	}

	first, err := Body(req)
	require.NoError(t, err)

	second, err := Body(req)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}
