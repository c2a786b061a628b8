// Package mock provides a test double for the llm.Provider interface.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Turn on the lights."}}
//	resp, _ := p.Complete(ctx, req)
//	last, _ := p.LastRequest()
//	last.SystemPrompt // the rule prompt
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fnx/pkg/provider/llm"
)

// CompleteCall records a single invocation of Provider.Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. With neither
// CompleteResponse nor CompleteErr set, Complete returns (nil, nil), which
// callers must treat as a malformed reply.
type Provider struct {
	mu sync.Mutex

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// Block, if non-nil, makes Complete wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	resp, err, block := p.CompleteResponse, p.CompleteErr, p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, err
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the request of the most recent call. ok is false when
// Complete was never called.
func (p *Provider) LastRequest() (req llm.CompletionRequest, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req, true
}
