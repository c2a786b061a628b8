// Package transform rewrites a transcription according to a rule's
// instruction using a language model.
//
// The instruction goes out as the system prompt and the transcription as
// the only user message, at a low temperature so rewrites stay on task.
// Model selection is done by constructing the [llm.Provider] with the
// desired model; the transformer never overrides it per request.
package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/fnx/pkg/provider/llm"
)

// DefaultTemperature keeps rewrites close to deterministic.
const DefaultTemperature = 0.3

// ErrEmptyPrompt is returned when Transform is called without an
// instruction. Callers are expected to skip the transform in that case.
var ErrEmptyPrompt = errors.New("transform: empty instruction")

// Option configures a [Transformer].
type Option func(*Transformer)

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(tr *Transformer) { tr.temperature = t }
}

// WithMaxTokens caps the reply length. Zero leaves the provider default.
func WithMaxTokens(n int) Option {
	return func(tr *Transformer) { tr.maxTokens = n }
}

// Transformer is safe for concurrent use.
type Transformer struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a Transformer backed by p.
func New(p llm.Provider, opts ...Option) *Transformer {
	t := &Transformer{llm: p, temperature: DefaultTemperature}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transform applies instruction to text and returns the trimmed reply.
// Provider errors ([*llm.APIError], [llm.ErrDecoding]) are wrapped, not
// replaced, so callers can classify them.
func (t *Transformer) Transform(ctx context.Context, text, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", ErrEmptyPrompt
	}
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: instruction,
		Messages:     []llm.Message{llm.UserMessage(text)},
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("transform: complete: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("transform: %w: no response", llm.ErrDecoding)
	}
	return strings.TrimSpace(resp.Content), nil
}
