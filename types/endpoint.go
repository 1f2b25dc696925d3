package types

import "time"

// Endpoint is the persisted identity of an LLM deployment. One JSON file
// per endpoint lives in the endpoints artifact directory; the id is the
// slug of the name and is immutable after creation.
type Endpoint struct {
	// ID is the slugified name.
	ID string `json:"id"`

	// Name is the human-readable endpoint name.
	Name string `json:"name"`

	// ConnectorType is the plugin key resolved through the registry
	// (e.g. "openai", "anthropic", "ollama", "openai-compatible").
	ConnectorType string `json:"connector_type"`

	// URI is the base URL of the deployment, when the adapter needs one.
	URI string `json:"uri"`

	// Token is the API credential passed to the adapter.
	Token string `json:"token"`

	// MaxCallsPerSecond caps the sustained request rate. Must be > 0.
	MaxCallsPerSecond int `json:"max_calls_per_second"`

	// MaxConcurrency caps in-flight requests. Must be > 0.
	MaxConcurrency int `json:"max_concurrency"`

	// Model is the model identifier sent with every request.
	Model string `json:"model"`

	// Params carries adapter and governor tuning: temperature,
	// max_tokens, top_p, timeout, retries_times, backoff_base,
	// pre_prompt, post_prompt.
	Params map[string]any `json:"params,omitempty"`

	// CreatedDate is derived from the artifact file's change time on
	// read. It is never persisted.
	CreatedDate string `json:"created_date,omitempty"`
}

// Validate checks the endpoint's required fields and numeric ranges.
func (e *Endpoint) Validate() error {
	if e.Name == "" {
		return &ValidationError{Field: "name", Message: "endpoint name is required"}
	}
	if e.ConnectorType == "" {
		return &ValidationError{Field: "connector_type", Message: "connector type is required"}
	}
	if e.MaxCallsPerSecond <= 0 {
		return &ValidationError{Field: "max_calls_per_second", Message: "must be greater than zero"}
	}
	if e.MaxConcurrency <= 0 {
		return &ValidationError{Field: "max_concurrency", Message: "must be greater than zero"}
	}
	return nil
}

// ParamString returns a string-valued param with a default.
func (e *Endpoint) ParamString(key, def string) string {
	if v, ok := e.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ParamInt returns an int-valued param with a default. JSON decoding
// yields float64 for numbers, so both forms are accepted.
func (e *Endpoint) ParamInt(key string, def int) int {
	switch v := e.Params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// ParamFloat returns a float-valued param with a default.
func (e *Endpoint) ParamFloat(key string, def float64) float64 {
	switch v := e.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// ParamDuration returns a param expressed in seconds as a duration.
func (e *Endpoint) ParamDuration(key string, def time.Duration) time.Duration {
	switch v := e.Params[key].(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	}
	return def
}

// EndpointUpdate patches mutable endpoint fields. Nil pointers leave the
// current value untouched; the id never changes.
type EndpointUpdate struct {
	ConnectorType     *string         `json:"connector_type,omitempty"`
	URI               *string         `json:"uri,omitempty"`
	Token             *string         `json:"token,omitempty"`
	MaxCallsPerSecond *int            `json:"max_calls_per_second,omitempty"`
	MaxConcurrency    *int            `json:"max_concurrency,omitempty"`
	Model             *string         `json:"model,omitempty"`
	Params            *map[string]any `json:"params,omitempty"`
}

// Apply merges the update into the endpoint and revalidates.
func (e *Endpoint) Apply(u EndpointUpdate) error {
	if u.ConnectorType != nil {
		e.ConnectorType = *u.ConnectorType
	}
	if u.URI != nil {
		e.URI = *u.URI
	}
	if u.Token != nil {
		e.Token = *u.Token
	}
	if u.MaxCallsPerSecond != nil {
		e.MaxCallsPerSecond = *u.MaxCallsPerSecond
	}
	if u.MaxConcurrency != nil {
		e.MaxConcurrency = *u.MaxConcurrency
	}
	if u.Model != nil {
		e.Model = *u.Model
	}
	if u.Params != nil {
		e.Params = *u.Params
	}
	return e.Validate()
}
