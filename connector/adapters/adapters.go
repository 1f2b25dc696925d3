// Package adapters provides the built-in connector adapters: OpenAI,
// Anthropic, Ollama and generic OpenAI-compatible endpoints via
// langchaingo, plus a scripted mock for tests. Builtins returns the
// factory map the framework registers under the connector plugin kind.
package adapters

import (
	"github.com/straylight-ai/crucible/connector"
)

// Adapter type keys, matching endpoint connector_type values.
const (
	TypeOpenAI           = "openai"
	TypeAnthropic        = "anthropic"
	TypeOllama           = "ollama"
	TypeOpenAICompatible = "openai-compatible"
	TypeMock             = "mock"
)

// Builtins returns the compiled-in adapter factories keyed by
// connector_type.
func Builtins() map[string]connector.Factory {
	return map[string]connector.Factory{
		TypeOpenAI:           NewOpenAI,
		TypeAnthropic:        NewAnthropic,
		TypeOllama:           NewOllama,
		TypeOpenAICompatible: NewOpenAICompatible,
		TypeMock:             NewMockFromEndpoint,
	}
}
