package types

import "encoding/json"

// TargetValue is a dataset target: either a single string or a list of
// acceptable strings. JSON round-trips preserve the authored form.
type TargetValue struct {
	values []string
	list   bool
}

// NewTarget builds a single-string target.
func NewTarget(s string) TargetValue {
	return TargetValue{values: []string{s}}
}

// NewTargetList builds a multi-string target.
func NewTargetList(ss ...string) TargetValue {
	return TargetValue{values: ss, list: true}
}

// Values returns the acceptable target strings.
func (t TargetValue) Values() []string {
	return t.values
}

// First returns the primary target string, or "" when empty.
func (t TargetValue) First() string {
	if len(t.values) == 0 {
		return ""
	}
	return t.values[0]
}

// Matches reports whether predicted equals any acceptable target.
func (t TargetValue) Matches(predicted string) bool {
	for _, v := range t.values {
		if v == predicted {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts both "target" and ["t1","t2"] forms.
func (t *TargetValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.values = []string{s}
		t.list = false
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	t.values = ss
	t.list = true
	return nil
}

// MarshalJSON re-emits the authored form.
func (t TargetValue) MarshalJSON() ([]byte, error) {
	if !t.list && len(t.values) == 1 {
		return json.Marshal(t.values[0])
	}
	return json.Marshal(t.values)
}

// DatasetExample is one (input, target) pair of a dataset.
type DatasetExample struct {
	Input  string      `json:"input"`
	Target TargetValue `json:"target"`
}

// Dataset is a finite ordered sequence of examples. Datasets are
// read-only inputs; the storage layer streams examples lazily so the
// Examples slice is populated only when a full read is requested.
type Dataset struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	License             string           `json:"license,omitempty"`
	Reference           string           `json:"reference,omitempty"`
	Examples            []DatasetExample `json:"examples,omitempty"`
	NumOfDatasetPrompts int              `json:"num_of_dataset_prompts"`
}

// Validate checks required dataset fields.
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return &ValidationError{Field: "name", Message: "dataset name is required"}
	}
	return nil
}

// PromptTemplate is a named text template with the single variable
// "prompt". Rendering is pure.
type PromptTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Template    string `json:"template"`
}

// Validate checks required template fields.
func (p *PromptTemplate) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "template name is required"}
	}
	if p.Template == "" {
		return &ValidationError{Field: "template", Message: "template text is required"}
	}
	return nil
}
