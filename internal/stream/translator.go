package stream

import (
	"fmt"

	"github.com/Davincible/modelrelay/internal/registry"
)

// Translator converts one upstream stream's raw data chunks into normalized
// events. A translator carries per-stream state and must not be reused
// across streams. It never retries: error handling is the pipeline's job.
type Translator interface {
	Family() registry.Family

	// Translate consumes one data payload from the upstream stream and
	// returns the normalized events it completes.
	Translate(chunk []byte) ([]Event, error)

	// Finish is called once after the upstream stream ends and returns any
	// closing events the upstream left implicit.
	Finish() []Event
}

// NewTranslator returns a fresh per-stream translator for a provider family.
func NewTranslator(family registry.Family) (Translator, error) {
	switch family {
	case registry.FamilyClaude:
		return newClaudeTranslator(), nil
	case registry.FamilyGemini:
		return newGeminiTranslator(), nil
	default:
		return nil, fmt.Errorf("no stream translator for provider family %q", family)
	}
}
