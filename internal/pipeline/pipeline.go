// Package pipeline orchestrates one logical completion request: model
// resolution, history normalization, the upstream call, and quota-driven
// fallback. Attempts are strictly sequential; trying models in parallel
// would burn quota on responses that get thrown away.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/tidwall/sjson"

	"github.com/Davincible/modelrelay/internal/message"
	"github.com/Davincible/modelrelay/internal/normalize"
	"github.com/Davincible/modelrelay/internal/registry"
	"github.com/Davincible/modelrelay/internal/stream"
	"github.com/Davincible/modelrelay/internal/upstream"
)

const maxErrorBodyBytes = 1 << 20

// Request is one caller request, provider-agnostic.
type Request struct {
	Model       string
	System      string
	Messages    []message.Message
	Tools       []normalize.Tool
	Thinking    *normalize.ThinkingConfig
	MaxTokens   int
	Temperature *float64
	Stream      bool
}

// Result is the resolved outcome of a request. Exactly one of Completion
// (non-streaming) or Events (streaming) is set.
type Result struct {
	Model      registry.ModelDescriptor
	Attempt    *Attempt
	Completion *stream.Completion
	Events     <-chan stream.Event
}

// Pipeline wires the registry, the normalizer, and the upstream client into
// the retry loop. It owns the retry budget; the resolver stays stateless.
type Pipeline struct {
	registry       *registry.Registry
	client         *upstream.Client
	logger         *slog.Logger
	maxHops        int
	attemptTimeout time.Duration
}

func New(reg *registry.Registry, client *upstream.Client, logger *slog.Logger, maxHops int, attemptTimeout time.Duration) *Pipeline {
	if maxHops <= 0 {
		maxHops = 3
	}

	if attemptTimeout <= 0 {
		attemptTimeout = 5 * time.Minute
	}

	return &Pipeline{
		registry:       reg,
		client:         client,
		logger:         logger,
		maxHops:        maxHops,
		attemptTimeout: attemptTimeout,
	}
}

// Execute runs the request to completion, falling back along the configured
// chain on quota exhaustion and transport failures.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	attempt := NewAttempt(req.Model)

	var (
		prevFamily registry.Family
		body       []byte
	)

	for {
		desc, err := p.registry.Describe(attempt.CurrentModel)
		if err != nil {
			var unknown *registry.UnknownModelError
			if errors.As(err, &unknown) {
				return nil, &ConfigurationError{Model: attempt.CurrentModel, Err: err}
			}

			return nil, err
		}

		// Fallback hops within one family only need the model id swapped;
		// crossing families requires renormalizing the whole history.
		if body == nil || desc.Family != prevFamily {
			body, err = normalize.Body(normalizeRequest(req, desc))
			if err != nil {
				return nil, &ConfigurationError{Model: desc.ID, Err: err}
			}
		} else if desc.Family == registry.FamilyClaude {
			body, err = sjson.SetBytes(body, "model", desc.ID)
			if err != nil {
				return nil, &ConfigurationError{Model: desc.ID, Err: err}
			}
		}

		prevFamily = desc.Family
		attempt.Record(desc.ID)

		result, attemptErr := p.tryModel(ctx, req, desc, body, attempt)
		if attemptErr == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !isFallbackTrigger(attemptErr) {
			return nil, attemptErr
		}

		p.logger.Warn("attempt failed, trying fallback",
			"model", desc.ID,
			"hops", attempt.Hops(),
			"error", attemptErr,
		)

		next, ok := p.registry.NextFallback(attempt.CurrentModel)
		if !ok || attempt.Hops() >= p.maxHops {
			attempt.Exhausted = true

			var quota *QuotaExhaustedError
			if errors.As(attemptErr, &quota) {
				return nil, &QuotaExhaustedError{Model: desc.ID, Attempted: attempt.AttemptedModels}
			}

			return nil, attemptErr
		}

		attempt.CurrentModel = next
	}
}

// tryModel performs a single upstream attempt.
func (p *Pipeline) tryModel(ctx context.Context, req Request, desc registry.ModelDescriptor, body []byte, attempt *Attempt) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)

	resp, err := p.client.Do(attemptCtx, desc, body, req.Stream)
	if err != nil {
		cancel()
		return nil, &UpstreamTransportError{Model: desc.ID, Err: err}
	}

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		cancel()

		return nil, p.classifyError(desc, resp.StatusCode, errBody)
	}

	if req.Stream {
		events := p.streamEvents(attemptCtx, cancel, resp, desc)

		return &Result{Model: desc, Attempt: attempt, Events: events}, nil
	}

	defer cancel()
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamTransportError{Model: desc.ID, Err: err}
	}

	completion, err := stream.Decode(desc.Family, respBody)
	if err != nil {
		return nil, &UpstreamError{Model: desc.ID, Status: resp.StatusCode, Message: err.Error()}
	}

	return &Result{Model: desc, Attempt: attempt, Completion: completion}, nil
}

func (p *Pipeline) classifyError(desc registry.ModelDescriptor, status int, body []byte) error {
	if upstream.IsQuotaExhausted(status, body) {
		return &QuotaExhaustedError{Model: desc.ID, Attempted: []string{desc.ID}}
	}

	if upstream.IsIncompatibleHistory(status, body) {
		return &IncompatibleHistoryError{
			Model:   desc.ID,
			Status:  status,
			Message: upstream.ErrorMessage(body),
		}
	}

	return &UpstreamError{Model: desc.ID, Status: status, Message: upstream.ErrorMessage(body)}
}

// streamEvents drains the upstream stream through the translator into an
// unbuffered channel. The channel gives backpressure: a slow caller slows
// the upstream read instead of growing a buffer.
func (p *Pipeline) streamEvents(ctx context.Context, cancel context.CancelFunc, resp *upstream.Response, desc registry.ModelDescriptor) <-chan stream.Event {
	out := make(chan stream.Event)

	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()

		translator, err := stream.NewTranslator(desc.Family)
		if err != nil {
			p.emit(ctx, out, stream.Event{Type: stream.EventError, Err: &StreamError{Model: desc.ID, Err: err}})
			return
		}

		machine := stream.NewMachine()
		reader := stream.NewSSEReader(resp.Body)

		for {
			chunk, readErr := reader.Next()
			if readErr == io.EOF {
				p.emitAll(ctx, out, machine, desc, translator.Finish())
				return
			}

			if readErr != nil {
				p.emit(ctx, out, stream.Event{Type: stream.EventError, Err: &StreamError{Model: desc.ID, Err: readErr}})
				return
			}

			events, terr := translator.Translate(chunk)
			if terr != nil {
				p.emit(ctx, out, stream.Event{Type: stream.EventError, Err: &StreamError{Model: desc.ID, Err: terr}})
				return
			}

			if !p.emitAll(ctx, out, machine, desc, events) {
				return
			}
		}
	}()

	return out
}

// emitAll validates each event against the state machine and forwards it.
// Returns false when the stream must end (error emitted or caller gone).
func (p *Pipeline) emitAll(ctx context.Context, out chan<- stream.Event, machine *stream.Machine, desc registry.ModelDescriptor, events []stream.Event) bool {
	for _, ev := range events {
		if err := machine.Apply(ev); err != nil {
			p.emit(ctx, out, stream.Event{Type: stream.EventError, Err: &StreamError{Model: desc.ID, Err: err}})
			return false
		}

		if !p.emit(ctx, out, ev) {
			return false
		}

		if ev.Type == stream.EventError {
			return false
		}
	}

	return true
}

func (p *Pipeline) emit(ctx context.Context, out chan<- stream.Event, ev stream.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// isFallbackTrigger reports whether an attempt error should advance the
// fallback chain. A timeout is treated identically to quota exhaustion; both
// mean the model is unavailable right now.
func isFallbackTrigger(err error) bool {
	var quota *QuotaExhaustedError
	if errors.As(err, &quota) {
		return true
	}

	var transport *UpstreamTransportError
	return errors.As(err, &transport)
}

func normalizeRequest(req Request, desc registry.ModelDescriptor) normalize.Request {
	return normalize.Request{
		Model:       desc,
		System:      req.System,
		Messages:    req.Messages,
		Tools:       req.Tools,
		Thinking:    req.Thinking,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
}
