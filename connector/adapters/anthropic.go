package adapters

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/types"
)

// AnthropicAdapter serves Anthropic Claude models.
type AnthropicAdapter struct {
	client *anthropic.LLM
	opts   []llms.CallOption
}

// NewAnthropic builds an adapter from an endpoint.
func NewAnthropic(ep types.Endpoint) (connector.Adapter, error) {
	clientOpts := []anthropic.Option{
		anthropic.WithToken(ep.Token),
	}
	if ep.Model != "" {
		clientOpts = append(clientOpts, anthropic.WithModel(ep.Model))
	}
	if ep.URI != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(ep.URI))
	}
	client, err := anthropic.New(clientOpts...)
	if err != nil {
		return nil, connector.Translate(TypeAnthropic, err)
	}
	return &AnthropicAdapter{client: client, opts: callOptions(ep)}, nil
}

// Type returns the adapter's plugin key.
func (a *AnthropicAdapter) Type() string {
	return TypeAnthropic
}

// Complete sends one prompt and returns the completion text.
func (a *AnthropicAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, a.client, prompt, a.opts...)
}
