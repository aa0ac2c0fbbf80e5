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

func claudeModel() registry.ModelDescriptor {
	return registry.ModelDescriptor{
		ID:               "claude-sonnet-4",
		Family:           registry.FamilyClaude,
		SupportsThinking: true,
		SupportsToolUse:  true,
		MaxTokens:        64000,
	}
}

func TestClaudeBody_BasicRequest(t *testing.T) {
	temp := 0.7
	req := Request{
		Model:       claudeModel(),
		System:      "You are a helpful assistant",
		MaxTokens:   1024,
		Temperature: &temp,
		Stream:      true,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("Hello")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "claude-sonnet-4", parsed.Get("model").String())
	assert.Equal(t, "You are a helpful assistant", parsed.Get("system").String())
	assert.Equal(t, int64(1024), parsed.Get("max_tokens").Int())
	assert.Equal(t, 0.7, parsed.Get("temperature").Float())
	assert.True(t, parsed.Get("stream").Bool())
	assert.Equal(t, "user", parsed.Get("messages.0.role").String())
	assert.Equal(t, "Hello", parsed.Get("messages.0.content.0.text").String())
}

func TestClaudeBody_ThinkingConfig(t *testing.T) {
	req := Request{
		Model:     claudeModel(),
		MaxTokens: 4096,
		Thinking:  &ThinkingConfig{BudgetTokens: 2048},
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("think hard")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "enabled", parsed.Get("thinking.type").String())
	assert.Equal(t, int64(2048), parsed.Get("thinking.budget_tokens").Int())

	// A model without thinking support never gets the field
	noThinking := claudeModel()
	noThinking.SupportsThinking = false
	req.Model = noThinking

	body, err = Body(req)
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(body, "thinking").Exists())
}

func TestClaudeBody_NativeSignaturePassthrough(t *testing.T) {
	sig := message.Signature("EuYBCkgIBRABGAI")
	req := Request{
		Model:     claudeModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("continue")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.Thinking("prior reasoning", sig, registry.FamilyClaude),
				message.Text("prior answer"),
			}},
			{Role: message.RoleUser, Content: []message.Block{message.Text("go on")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	block := gjson.GetBytes(body, "messages.1.content.0")
	assert.Equal(t, "thinking", block.Get("type").String())
	assert.Equal(t, "prior reasoning", block.Get("thinking").String())
	assert.Equal(t, "EuYBCkgIBRABGAI", block.Get("signature").String(), "same-family signature is byte-for-byte")
}

func TestClaudeBody_ForeignSignatureStripped(t *testing.T) {
	req := Request{
		Model:     claudeModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("hi")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.Thinking("gemini reasoning", message.Signature("gemini-sig"), registry.FamilyGemini),
				message.Text("answer"),
			}},
			{Role: message.RoleUser, Content: []message.Block{message.Text("next")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "gemini-sig", "foreign signature must not reach the wire")

	// The stripped thinking content is demoted to a plain text block
	block := gjson.GetBytes(body, "messages.1.content.0")
	assert.Equal(t, "text", block.Get("type").String())
	assert.Equal(t, "gemini reasoning", block.Get("text").String())
}

func TestClaudeBody_EmptyUnsignedThinkingOmitted(t *testing.T) {
	req := Request{
		Model:     claudeModel(),
		MaxTokens: 1024,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("hi")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.Thinking("", message.Signature("foreign"), registry.FamilyGemini),
				message.Text("answer"),
			}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	content := gjson.GetBytes(body, "messages.1.content")
	require.Equal(t, int64(1), int64(len(content.Array())))
	assert.Equal(t, "answer", content.Get("0.text").String())
}

func TestClaudeBody_ToolLoop(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`)
	req := Request{
		Model:     claudeModel(),
		MaxTokens: 1024,
		Tools: []Tool{
			{Name: "bash", Description: "Run a shell command", InputSchema: schema},
		},
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("Run ls -la")}},
			{Role: message.RoleAssistant, Content: []message.Block{
				message.ToolUse("toolu_01", "bash", json.RawMessage(`{"command":"ls -la"}`), nil, registry.FamilyClaude),
			}},
			{Role: message.RoleUser, Content: []message.Block{
				message.ToolResult("toolu_01", json.RawMessage(`"total 8\ndrwxr-xr-x ."`)),
			}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "bash", parsed.Get("tools.0.name").String())
	assert.Equal(t, "object", parsed.Get("tools.0.input_schema.type").String())

	toolUse := parsed.Get("messages.1.content.0")
	assert.Equal(t, "tool_use", toolUse.Get("type").String())
	assert.Equal(t, "toolu_01", toolUse.Get("id").String())
	assert.Equal(t, "ls -la", toolUse.Get("input.command").String())

	toolResult := parsed.Get("messages.2.content.0")
	assert.Equal(t, "tool_result", toolResult.Get("type").String())
	assert.Equal(t, "toolu_01", toolResult.Get("tool_use_id").String())
}

func TestClaudeBody_ToolsOmittedWithoutSupport(t *testing.T) {
	model := claudeModel()
	model.SupportsToolUse = false

	req := Request{
		Model:     model,
		MaxTokens: 1024,
		Tools:     []Tool{{Name: "bash"}},
		Messages: []message.Message{
			{Role: message.RoleUser, Content: []message.Block{message.Text("hi")}},
		},
	}

	body, err := Body(req)
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(body, "tools").Exists())
}

func TestMaxTokensFor_ClampedToModelLimit(t *testing.T) {
	model := claudeModel()
	model.MaxTokens = 8192

	// Caller request over the model limit clamps down
	assert.Equal(t, 8192, maxTokensFor(Request{Model: model, MaxTokens: 100000}))
	// Within the limit passes through
	assert.Equal(t, 1024, maxTokensFor(Request{Model: model, MaxTokens: 1024}))
	// Unset falls back to the model limit
	assert.Equal(t, 8192, maxTokensFor(Request{Model: model}))
}

func TestForFamily_UnknownFamily(t *testing.T) {
	_, err := ForFamily(registry.FamilyUnknown)
	require.Error(t, err)

	_, err = ForFamily(registry.FamilyOther)
	require.Error(t, err)
}
