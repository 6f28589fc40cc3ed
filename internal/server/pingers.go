package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// generator is the minimal chat-model surface the pinger needs; satisfied by
// every eino chat model.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatModelPinger probes an LLM backend by sending a minimal generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
// The probe consumes a handful of tokens, which is why /api/ready bounds it
// with probeTimeout and is not meant for tight polling loops.
type ChatModelPinger struct {
	// model is the chat model to probe.
	model generator
	// name identifies the backend in readiness responses (e.g. "gemini").
	name string
}

// NewChatModelPinger constructs a ChatModelPinger for the given model and
// backend name.
func NewChatModelPinger(m generator, name string) *ChatModelPinger {
	return &ChatModelPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *ChatModelPinger) Name() string { return p.name }

// Ping sends a one-word generate request and checks for a non-nil response.
func (p *ChatModelPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// PingerFunc adapts a plain probe function into a Pinger. Used to surface
// dependencies that expose their own Ping method, such as the Qdrant index
// backend.
type PingerFunc struct {
	// name is the dependency label used in readiness responses.
	name string
	// fn is the probe to run.
	fn func(ctx context.Context) error
}

// NewPingerFunc constructs a PingerFunc with the given label and probe.
func NewPingerFunc(name string, fn func(ctx context.Context) error) *PingerFunc {
	return &PingerFunc{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *PingerFunc) Name() string { return p.name }

// Ping runs the wrapped probe.
func (p *PingerFunc) Ping(ctx context.Context) error {
	return p.fn(ctx)
}
