package stream

import (
	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

var claudeStopReasons = map[string]message.StopReason{
	"end_turn":      message.StopEndTurn,
	"tool_use":      message.StopToolUse,
	"max_tokens":    message.StopMaxTokens,
	"stop_sequence": message.StopStopSequence,
}

var geminiStopReasons = map[string]message.StopReason{
	"STOP":                      message.StopEndTurn,
	"MAX_TOKENS":                message.StopMaxTokens,
	"SAFETY":                    message.StopStopSequence,
	"RECITATION":                message.StopStopSequence,
	"LANGUAGE":                  message.StopStopSequence,
	"BLOCKLIST":                 message.StopStopSequence,
	"PROHIBITED_CONTENT":        message.StopStopSequence,
	"SPII":                      message.StopStopSequence,
	"MALFORMED_FUNCTION_CALL":   message.StopToolUse,
	"OTHER":                     message.StopEndTurn,
	"FINISH_REASON_UNSPECIFIED": message.StopEndTurn,
}

// CanonicalStopReason maps a provider's native stop vocabulary to the
// canonical one. Unknown values default to end_turn.
func CanonicalStopReason(family registry.Family, raw string) message.StopReason {
	var table map[string]message.StopReason

	switch family {
	case registry.FamilyGemini:
		table = geminiStopReasons
	default:
		table = claudeStopReasons
	}

	if reason, ok := table[raw]; ok {
		return reason
	}

	return message.StopEndTurn
}
