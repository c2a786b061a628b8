package transform_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/fnx/internal/transform"
	"github.com/MrWong99/fnx/pkg/provider/llm"
	"github.com/MrWong99/fnx/pkg/provider/llm/mock"
)

func TestTransform_BuildsRequest(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  Turn on the lights.\n"}}
	tr := transform.New(p)

	got, err := tr.Transform(context.Background(), "um turn on the uh lights", "Clean it up.")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if got != "Turn on the lights." {
		t.Errorf("got %q, want trimmed reply", got)
	}

	if p.CallCount() != 1 {
		t.Fatalf("Complete called %d times", p.CallCount())
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != "Clean it up." {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.Temperature != transform.DefaultTemperature {
		t.Errorf("temperature = %v, want %v", req.Temperature, transform.DefaultTemperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != "um turn on the uh lights" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestTransform_Options(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "x"}}
	tr := transform.New(p, transform.WithTemperature(0), transform.WithMaxTokens(256))
	if _, err := tr.Transform(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	req, ok := p.LastRequest()
	if !ok {
		t.Fatal("provider not called")
	}
	if req.Temperature != 0 || req.MaxTokens != 256 {
		t.Errorf("request = %+v", req)
	}
}

func TestTransform_EmptyInstruction(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{}
	tr := transform.New(p)
	if _, err := tr.Transform(context.Background(), "hello", " \n"); !errors.Is(err, transform.ErrEmptyPrompt) {
		t.Fatalf("err = %v, want ErrEmptyPrompt", err)
	}
	if p.CallCount() != 0 {
		t.Error("provider must not be called without an instruction")
	}
}

func TestTransform_ProviderErrorsPreserved(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"api", &llm.APIError{StatusCode: 500, Message: "boom"}, func(err error) bool {
			var apiErr *llm.APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode == 500
		}},
		{"decoding", llm.ErrDecoding, func(err error) bool { return errors.Is(err, llm.ErrDecoding) }},
		{"canceled", context.Canceled, func(err error) bool { return errors.Is(err, context.Canceled) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := transform.New(&mock.Provider{CompleteErr: tt.err})
			_, err := tr.Transform(context.Background(), "hello", "x")
			if err == nil || !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestTransform_NilResponse(t *testing.T) {
	t.Parallel()
	tr := transform.New(&mock.Provider{})
	if _, err := tr.Transform(context.Background(), "hello", "x"); !errors.Is(err, llm.ErrDecoding) {
		t.Errorf("err = %v, want ErrDecoding", err)
	}
}
