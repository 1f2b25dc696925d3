package redteam

import (
	"fmt"
	"strings"

	"github.com/straylight-ai/crucible/types"
)

// ContextStrategy rewrites a user prompt using the endpoint's recent
// chat history before template rendering.
type ContextStrategy interface {
	ID() string

	// AddContext folds the newest-first history into the prompt.
	AddContext(userPrompt string, history []types.ChatRecord) string
}

// ContextStrategyFactory builds a strategy from plugin params.
type ContextStrategyFactory func(params map[string]any) (ContextStrategy, error)

// addPreviousPrompt is the builtin strategy: it prefixes the previous
// user prompts and their responses so the model sees the conversation
// so far.
type addPreviousPrompt struct{}

// NewAddPreviousPrompt builds the builtin "add_previous_prompt"
// strategy.
func NewAddPreviousPrompt() ContextStrategy {
	return &addPreviousPrompt{}
}

func (s *addPreviousPrompt) ID() string { return "add_previous_prompt" }

func (s *addPreviousPrompt) AddContext(userPrompt string, history []types.ChatRecord) string {
	if len(history) == 0 {
		return userPrompt
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, rec := range history {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", rec.Prompt, rec.Predicted)
	}
	b.WriteString("\n")
	b.WriteString(userPrompt)
	return b.String()
}
