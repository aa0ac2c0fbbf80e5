package stream

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/registry"
)

// geminiTranslator consumes generateContent streaming chunks. The wire has
// no explicit block boundaries, so block start/stop events are synthesized
// whenever the part kind changes.
type geminiTranslator struct {
	started      bool
	stopped      bool
	messageID    string
	model        string
	nextIndex    int
	currentIndex int
	currentKind  message.BlockKind
	blockOpen    bool
	usage        message.Usage
	stopReason   message.StopReason
}

func newGeminiTranslator() *geminiTranslator {
	return &geminiTranslator{
		currentIndex: -1,
		stopReason:   message.StopEndTurn,
	}
}

func (t *geminiTranslator) Family() registry.Family {
	return registry.FamilyGemini
}

func (t *geminiTranslator) Translate(chunk []byte) ([]Event, error) {
	if !gjson.ValidBytes(chunk) {
		return nil, fmt.Errorf("invalid JSON in upstream stream chunk")
	}

	data := gjson.ParseBytes(chunk)

	if errObj := data.Get("error"); errObj.Exists() {
		return append(t.closeOpenBlock(), Event{
			Type: EventError,
			Err: fmt.Errorf("upstream error (%s): %s",
				errObj.Get("status").String(), errObj.Get("message").String()),
		}), nil
	}

	var events []Event

	if !t.started {
		t.started = true
		t.messageID = data.Get("responseId").String()
		t.model = data.Get("modelVersion").String()
		t.usage.InputTokens = int(data.Get("usageMetadata.promptTokenCount").Int())

		events = append(events, Event{
			Type:      EventMessageStart,
			MessageID: t.messageID,
			Model:     t.model,
		})
	}

	candidate := data.Get("candidates.0")

	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		events = append(events, t.translatePart(part)...)
		return true
	})

	if usage := data.Get("usageMetadata"); usage.Exists() {
		if in := usage.Get("promptTokenCount"); in.Exists() {
			t.usage.InputTokens = int(in.Int())
		}

		if out := usage.Get("candidatesTokenCount"); out.Exists() {
			t.usage.OutputTokens = int(out.Int())
		}
	}

	if finish := candidate.Get("finishReason"); finish.Exists() && finish.String() != "" {
		t.stopReason = CanonicalStopReason(registry.FamilyGemini, finish.String())
		events = append(events, t.closeOpenBlock()...)
		events = append(events, t.stopEvent())
	}

	return events, nil
}

func (t *geminiTranslator) translatePart(part gjson.Result) []Event {
	if fc := part.Get("functionCall"); fc.Exists() {
		return t.translateFunctionCall(part, fc)
	}

	text := part.Get("text").String()
	if text == "" {
		return nil
	}

	kind := message.KindText
	if part.Get("thought").Bool() {
		kind = message.KindThinking
	}

	events := t.ensureBlock(kind, "", "")

	events = append(events, Event{
		Type:  EventBlockDelta,
		Index: t.currentIndex,
		Kind:  kind,
		Text:  text,
	})

	if sig := part.Get("thoughtSignature"); kind == message.KindThinking && sig.Exists() {
		events = append(events, Event{
			Type:      EventBlockDelta,
			Index:     t.currentIndex,
			Kind:      kind,
			Signature: message.Signature(sig.String()),
		})
	}

	return events
}

// translateFunctionCall emits a complete tool_use block: the wire delivers
// function calls whole, not incrementally.
func (t *geminiTranslator) translateFunctionCall(part, fc gjson.Result) []Event {
	events := t.closeOpenBlock()

	index := t.nextIndex
	t.nextIndex++

	toolID := "toolu_" + uuid.NewString()

	events = append(events, Event{
		Type:     EventBlockStart,
		Index:    index,
		Kind:     message.KindToolUse,
		ToolID:   toolID,
		ToolName: fc.Get("name").String(),
	})

	if args := fc.Get("args"); args.Exists() {
		events = append(events, Event{
			Type:        EventBlockDelta,
			Index:       index,
			Kind:        message.KindToolUse,
			PartialJSON: args.Raw,
		})
	}

	if sig := part.Get("thoughtSignature"); sig.Exists() {
		events = append(events, Event{
			Type:      EventBlockDelta,
			Index:     index,
			Kind:      message.KindToolUse,
			Signature: message.Signature(sig.String()),
		})
	}

	events = append(events, Event{
		Type:  EventBlockStop,
		Index: index,
		Kind:  message.KindToolUse,
	})

	return events
}

// ensureBlock opens a block of the wanted kind, closing the previous one
// when the part kind changes mid-stream.
func (t *geminiTranslator) ensureBlock(kind message.BlockKind, toolID, toolName string) []Event {
	if t.blockOpen && t.currentKind == kind {
		return nil
	}

	events := t.closeOpenBlock()

	index := t.nextIndex
	t.nextIndex++

	t.blockOpen = true
	t.currentKind = kind
	t.currentIndex = index

	events = append(events, Event{
		Type:     EventBlockStart,
		Index:    index,
		Kind:     kind,
		ToolID:   toolID,
		ToolName: toolName,
	})

	return events
}

func (t *geminiTranslator) closeOpenBlock() []Event {
	if !t.blockOpen {
		return nil
	}

	ev := Event{
		Type:  EventBlockStop,
		Index: t.currentIndex,
		Kind:  t.currentKind,
	}

	t.blockOpen = false
	t.currentIndex = -1

	return []Event{ev}
}

func (t *geminiTranslator) stopEvent() Event {
	t.stopped = true
	usage := t.usage

	return Event{
		Type:       EventMessageStop,
		StopReason: t.stopReason,
		Usage:      &usage,
	}
}

func (t *geminiTranslator) Finish() []Event {
	if t.stopped {
		return nil
	}

	events := t.closeOpenBlock()

	if t.started {
		events = append(events, t.stopEvent())
	}

	return events
}
