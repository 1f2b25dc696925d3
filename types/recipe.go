package types

// Recipe is a self-contained benchmark unit: datasets, optional prompt
// templates, scoring metrics and a grading scale.
type Recipe struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Tags            []string     `json:"tags,omitempty"`
	Categories      []string     `json:"categories,omitempty"`
	Datasets        []string     `json:"datasets"`
	PromptTemplates []string     `json:"prompt_templates,omitempty"`
	Metrics         []string     `json:"metrics"`
	GradingScale    GradingScale `json:"grading_scale,omitempty"`

	// Stats is computed on read and never persisted.
	Stats *RecipeStats `json:"stats,omitempty"`
}

// RecipeStats summarizes a recipe for listing surfaces. Computed from
// the artifact store at read time.
type RecipeStats struct {
	NumOfTags            int            `json:"num_of_tags"`
	NumOfDatasets        int            `json:"num_of_datasets"`
	NumOfPromptTemplates int            `json:"num_of_prompt_templates"`
	NumOfMetrics         int            `json:"num_of_metrics"`
	NumOfDatasetPrompts  map[string]int `json:"num_of_datasets_prompts,omitempty"`
}

// Validate checks the recipe's required fields and grading scale.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "recipe name is required"}
	}
	if len(r.Datasets) == 0 {
		return &ValidationError{Field: "datasets", Message: "at least one dataset is required"}
	}
	if len(r.Metrics) == 0 {
		return &ValidationError{Field: "metrics", Message: "at least one metric is required"}
	}
	return r.GradingScale.Validate()
}

// RecipeUpdate patches mutable recipe fields.
type RecipeUpdate struct {
	Description     *string       `json:"description,omitempty"`
	Tags            *[]string     `json:"tags,omitempty"`
	Categories      *[]string     `json:"categories,omitempty"`
	Datasets        *[]string     `json:"datasets,omitempty"`
	PromptTemplates *[]string     `json:"prompt_templates,omitempty"`
	Metrics         *[]string     `json:"metrics,omitempty"`
	GradingScale    *GradingScale `json:"grading_scale,omitempty"`
}

// Apply merges the update into the recipe and revalidates.
func (r *Recipe) Apply(u RecipeUpdate) error {
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Tags != nil {
		r.Tags = *u.Tags
	}
	if u.Categories != nil {
		r.Categories = *u.Categories
	}
	if u.Datasets != nil {
		r.Datasets = *u.Datasets
	}
	if u.PromptTemplates != nil {
		r.PromptTemplates = *u.PromptTemplates
	}
	if u.Metrics != nil {
		r.Metrics = *u.Metrics
	}
	if u.GradingScale != nil {
		r.GradingScale = *u.GradingScale
	}
	return r.Validate()
}

// Cookbook is an ordered collection of recipe ids.
type Cookbook struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Recipes     []string `json:"recipes"`
}

// Validate checks the cookbook's required fields.
func (c *Cookbook) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Message: "cookbook name is required"}
	}
	if len(c.Recipes) == 0 {
		return &ValidationError{Field: "recipes", Message: "at least one recipe is required"}
	}
	return nil
}

// CookbookUpdate patches mutable cookbook fields.
type CookbookUpdate struct {
	Description *string   `json:"description,omitempty"`
	Recipes     *[]string `json:"recipes,omitempty"`
}

// Apply merges the update into the cookbook and revalidates.
func (c *Cookbook) Apply(u CookbookUpdate) error {
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Recipes != nil {
		c.Recipes = *u.Recipes
	}
	return c.Validate()
}
