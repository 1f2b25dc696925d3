package types

import "time"

// Session is the red-teaming state bound to a runner. At most one
// session exists per runner; its id is the runner id.
type Session struct {
	SessionID          string   `json:"session_id"`
	Endpoints          []string `json:"endpoints"`
	CreatedEpoch       int64    `json:"created_epoch"`
	CreatedDatetime    string   `json:"created_datetime"`
	PromptTemplate     string   `json:"prompt_template,omitempty"`
	ContextStrategy    string   `json:"context_strategy,omitempty"`
	CSNumOfPrevPrompts int      `json:"cs_num_of_prev_prompts"`
	AttackModule       string   `json:"attack_module,omitempty"`
	Metric             string   `json:"metric,omitempty"`
	SystemPrompt       string   `json:"system_prompt,omitempty"`

	// ChatIDs maps endpoint id to its chat history table name.
	ChatIDs map[string]string `json:"chat_ids,omitempty"`
}

// DefaultNumOfPrevPrompts is the context-strategy history depth used
// when a session does not override it.
const DefaultNumOfPrevPrompts = 5

// SessionUpdate patches mutable session fields.
type SessionUpdate struct {
	PromptTemplate     *string `json:"prompt_template,omitempty"`
	ContextStrategy    *string `json:"context_strategy,omitempty"`
	CSNumOfPrevPrompts *int    `json:"cs_num_of_prev_prompts,omitempty"`
	AttackModule       *string `json:"attack_module,omitempty"`
	Metric             *string `json:"metric,omitempty"`
	SystemPrompt       *string `json:"system_prompt,omitempty"`
}

// Apply merges the update into the session.
func (s *Session) Apply(u SessionUpdate) {
	if u.PromptTemplate != nil {
		s.PromptTemplate = *u.PromptTemplate
	}
	if u.ContextStrategy != nil {
		s.ContextStrategy = *u.ContextStrategy
	}
	if u.CSNumOfPrevPrompts != nil {
		s.CSNumOfPrevPrompts = *u.CSNumOfPrevPrompts
	}
	if u.AttackModule != nil {
		s.AttackModule = *u.AttackModule
	}
	if u.Metric != nil {
		s.Metric = *u.Metric
	}
	if u.SystemPrompt != nil {
		s.SystemPrompt = *u.SystemPrompt
	}
}

// ChatRecord is one turn of a per-endpoint conversation history. Chat
// tables are append-only; PromptTime is monotone nondecreasing within
// a chat.
type ChatRecord struct {
	ChatRecordID    string        `json:"chat_record_id"`
	ConnectionID    string        `json:"conn_id"`
	ContextStrategy string        `json:"context_strategy,omitempty"`
	PromptTemplate  string        `json:"prompt_template,omitempty"`
	Prompt          string        `json:"prompt"`
	PreparedPrompt  string        `json:"prepared_prompt"`
	Predicted       string        `json:"predicted_result"`
	Duration        time.Duration `json:"duration"`
	PromptTime      time.Time     `json:"prompt_time"`
}
