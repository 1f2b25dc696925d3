package adapters

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/types"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaAdapter serves local Ollama models.
type OllamaAdapter struct {
	client *ollama.LLM
	opts   []llms.CallOption
}

// NewOllama builds an adapter from an endpoint; uri defaults to the
// local Ollama server.
func NewOllama(ep types.Endpoint) (connector.Adapter, error) {
	serverURL := ep.URI
	if serverURL == "" {
		serverURL = defaultOllamaURL
	}
	clientOpts := []ollama.Option{
		ollama.WithServerURL(serverURL),
	}
	if ep.Model != "" {
		clientOpts = append(clientOpts, ollama.WithModel(ep.Model))
	}
	client, err := ollama.New(clientOpts...)
	if err != nil {
		return nil, connector.Translate(TypeOllama, err)
	}
	return &OllamaAdapter{client: client, opts: callOptions(ep)}, nil
}

// Type returns the adapter's plugin key.
func (a *OllamaAdapter) Type() string {
	return TypeOllama
}

// Complete sends one prompt and returns the completion text.
func (a *OllamaAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, a.client, prompt, a.opts...)
}
