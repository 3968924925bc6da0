// Package llm talks to the OpenAI-compatible model endpoint (OpenRouter by
// default) with each tenant's own API key.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
)

// Options configures a Provider.
type Options struct {
	BaseURL            string
	Model              string
	TranscriptionModel string
	Timeout            time.Duration
	HTTPClient         *http.Client
}

// Provider builds a client per call from the tenant's openrouter_api_key.
type Provider struct {
	creds credentials.Reader
	opts  Options
}

func NewProvider(creds credentials.Reader, opts Options) *Provider {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Provider{creds: creds, opts: opts}
}

func (p *Provider) client(ctx context.Context) (*openai.Client, error) {
	keys, err := credentials.Require(ctx, p.creds, model.KeyOpenRouterAPIKey)
	if err != nil {
		return nil, err
	}
	cfg := openai.DefaultConfig(keys[model.KeyOpenRouterAPIKey])
	if p.opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(p.opts.BaseURL, "/")
	}
	cfg.HTTPClient = p.opts.HTTPClient
	return openai.NewClientWithConfig(cfg), nil
}

// Complete sends exactly one system and one user message and returns the
// first choice's content, which may be empty.
func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	observer.ObserveLLMRequest("chat", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", apperrors.ErrIntegration, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe uploads audio and returns the recognised text.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.opts.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	observer.ObserveLLMRequest("transcription", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", apperrors.ErrIntegration, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
