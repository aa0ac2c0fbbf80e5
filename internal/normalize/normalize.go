// Package normalize rewrites a provider-agnostic conversation into the wire
// format of a specific target provider family. Each family gets its own
// normalizer so wire-shape logic stays an isolated, independently testable
// unit; the package never mutates the caller's conversation.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// Tool is a provider-agnostic tool declaration.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ThinkingConfig asks the target model to emit reasoning traces.
type ThinkingConfig struct {
	BudgetTokens int `json:"budget_tokens,omitempty"`
}

// Request is the normalized input to a single upstream attempt.
type Request struct {
	Model       registry.ModelDescriptor
	System      string
	Messages    []message.Message
	Tools       []Tool
	Thinking    *ThinkingConfig
	MaxTokens   int
	Temperature *float64
	Stream      bool
}

// Normalizer produces the upstream request body for one provider family.
type Normalizer interface {
	Family() registry.Family
	Body(req Request) ([]byte, error)
}

// ForFamily dispatches to the wire builder for the given family.
func ForFamily(f registry.Family) (Normalizer, error) {
	switch f {
	case registry.FamilyClaude:
		return claudeNormalizer{}, nil
	case registry.FamilyGemini:
		return geminiNormalizer{}, nil
	default:
		return nil, fmt.Errorf("no normalizer for provider family %q", f)
	}
}

// Body normalizes a request for its target model's family.
func Body(req Request) ([]byte, error) {
	n, err := ForFamily(req.Model.Family)
	if err != nil {
		return nil, err
	}

	return n.Body(req)
}
