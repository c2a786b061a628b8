// Package openai provides an STT provider for OpenAI-compatible
// transcription endpoints, built on the official openai-go SDK.
//
// Recordings go to {base}/v1/audio/transcriptions, or /v1/audio/translations
// when translation is requested, with response_format=text so a successful
// response body is the transcript itself.
//
// Usage:
//
//	p, err := openai.New(apiKey)
//	text, err := p.Transcribe(ctx, stt.Request{AudioPath: path})
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/fnx/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "whisper-1"
	defaultTimeout = 60 * time.Second

	wavHeaderSize = 44
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*settings)

type settings struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// WithBaseURL overrides the API root (e.g., for Azure or a local
// OpenAI-compatible server). Defaults to https://api.openai.com.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel sets the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 60 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// Provider implements stt.Provider against an OpenAI-compatible audio API.
type Provider struct {
	client oai.Client
	model  string
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	s := settings{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(&s)
	}

	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(s.baseURL+"/v1/"),
		option.WithHTTPClient(s.httpClient),
		// A session transcribes once; a failure is reported, not retried.
		option.WithMaxRetries(0),
		option.WithMiddleware(rejectNonOK),
	)
	return &Provider{client: client, model: s.model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	wav, err := os.ReadFile(req.AudioPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", stt.ErrInvalidAudio, err)
		}
		return "", fmt.Errorf("openai stt: read recording: %w", err)
	}
	if len(wav) <= wavHeaderSize {
		return "", fmt.Errorf("%w: recording %s is empty", stt.ErrInvalidAudio, req.AudioPath)
	}

	upload := oai.File(bytes.NewReader(wav), "recording.wav", "audio/wav")
	// The plain-text body is read as is instead of being decoded as JSON.
	var body []byte
	into := option.WithResponseBodyInto(&body)

	if req.Translate {
		_, err = p.client.Audio.Translations.New(ctx, oai.AudioTranslationNewParams{
			File:           upload,
			Model:          oai.AudioModel(p.model),
			ResponseFormat: oai.AudioTranslationNewParamsResponseFormatText,
		}, into)
	} else {
		_, err = p.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
			File:           upload,
			Model:          oai.AudioModel(p.model),
			ResponseFormat: oai.AudioResponseFormatText,
		}, into)
	}
	if err != nil {
		var apiErr *stt.APIError
		if errors.As(err, &apiErr) {
			return "", apiErr
		}
		return "", fmt.Errorf("openai stt: request: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// rejectNonOK turns any non-200 answer into an [stt.APIError] carrying the
// raw body. Self-hosted servers often answer with plain text, which the SDK
// cannot map onto its own error type.
func rejectNonOK(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp.StatusCode == http.StatusOK {
		return resp, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, &stt.APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
