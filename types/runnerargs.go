package types

// RunnerArgs is the serializable work order handed to a runner's Run.
// Exactly one shape is expected per run: benchmark runs carry recipes
// or cookbooks, red-team runs carry manual args or attack strategies.
// The resolved processing module defaults from the populated fields.
type RunnerArgs struct {
	Recipes                   []string `json:"recipes,omitempty"`
	Cookbooks                 []string `json:"cookbooks,omitempty"`
	PromptSelectionPercentage float64  `json:"prompt_selection_percentage,omitempty"`
	RandomSeed                int64    `json:"random_seed,omitempty"`
	SystemPrompt              string   `json:"system_prompt,omitempty"`

	// ProcessingModule overrides the default module resolution.
	ProcessingModule string `json:"runner_processing_module,omitempty"`

	ManualRTArgs     *ManualRTArgs    `json:"manual_rt_args,omitempty"`
	AttackStrategies []AttackStrategy `json:"attack_strategies,omitempty"`
}

// ManualRTArgs drives one manual red-team round: a single user prompt
// prepared through the optional context strategy and prompt template,
// dispatched to every session endpoint.
type ManualRTArgs struct {
	Prompt             string `json:"prompt"`
	ContextStrategy    string `json:"context_strategy,omitempty"`
	CSNumOfPrevPrompts int    `json:"cs_num_of_prev_prompts,omitempty"`
	PromptTemplate     string `json:"prompt_template,omitempty"`
}

// AttackStrategy names one automated attack-module invocation with its
// preparation plugins and parameters.
type AttackStrategy struct {
	AttackModule    string             `json:"attack_module"`
	Prompt          string             `json:"prompt"`
	Metrics         []string           `json:"metrics,omitempty"`
	ContextStrategy string             `json:"context_strategy,omitempty"`
	PromptTemplates []string           `json:"prompt_templates,omitempty"`
	MaxIterations   int                `json:"max_iterations,omitempty"`
	StopExpression  string             `json:"stop_expression,omitempty"`
	Thresholds      map[string]float64 `json:"thresholds,omitempty"`
	Params          map[string]any     `json:"params,omitempty"`
}
