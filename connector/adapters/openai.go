package adapters

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/types"
)

// OpenAIAdapter serves OpenAI chat models.
type OpenAIAdapter struct {
	client *openai.LLM
	opts   []llms.CallOption
}

// NewOpenAI builds an adapter from an endpoint. The endpoint token is
// the API key; uri overrides the default API base when set.
func NewOpenAI(ep types.Endpoint) (connector.Adapter, error) {
	clientOpts := []openai.Option{
		openai.WithToken(ep.Token),
	}
	if ep.Model != "" {
		clientOpts = append(clientOpts, openai.WithModel(ep.Model))
	}
	if ep.URI != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(ep.URI))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, connector.Translate(TypeOpenAI, err)
	}
	return &OpenAIAdapter{client: client, opts: callOptions(ep)}, nil
}

// Type returns the adapter's plugin key.
func (a *OpenAIAdapter) Type() string {
	return TypeOpenAI
}

// Complete sends one prompt and returns the completion text.
func (a *OpenAIAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, a.client, prompt, a.opts...)
	if err != nil {
		return "", err
	}
	return out, nil
}

// NewOpenAICompatible targets any endpoint speaking the OpenAI wire
// protocol (vLLM, LiteLLM, local gateways). The uri field is required.
func NewOpenAICompatible(ep types.Endpoint) (connector.Adapter, error) {
	if ep.URI == "" {
		return nil, &types.ValidationError{Field: "uri", Message: "openai-compatible endpoints require a uri"}
	}
	a, err := NewOpenAI(ep)
	if err != nil {
		return nil, err
	}
	return &compatibleAdapter{inner: a}, nil
}

type compatibleAdapter struct {
	inner connector.Adapter
}

func (a *compatibleAdapter) Type() string {
	return TypeOpenAICompatible
}

func (a *compatibleAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return a.inner.Complete(ctx, prompt)
}

// callOptions maps endpoint params onto langchaingo call options.
func callOptions(ep types.Endpoint) []llms.CallOption {
	var opts []llms.CallOption
	if t := ep.ParamFloat("temperature", -1); t >= 0 {
		opts = append(opts, llms.WithTemperature(t))
	}
	if n := ep.ParamInt("max_tokens", 0); n > 0 {
		opts = append(opts, llms.WithMaxTokens(n))
	}
	if p := ep.ParamFloat("top_p", -1); p >= 0 {
		opts = append(opts, llms.WithTopP(p))
	}
	return opts
}
