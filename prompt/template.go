package prompt

import (
	"strings"
	"text/template"

	"github.com/straylight-ai/crucible/types"
)

// Template is a parsed prompt template exposing the single variable
// {{.prompt}}. Rendering is pure; a reference to an undefined variable
// is a render error, not an empty substitution.
type Template struct {
	name string
	t    *template.Template
}

// Parse compiles the template text.
func Parse(name, text string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, types.WrapError(types.PIPELINE_FATAL, "parsing prompt template "+name, err)
	}
	return &Template{name: name, t: t}, nil
}

// Name returns the template's id.
func (t *Template) Name() string {
	return t.name
}

// Render substitutes the example input for {{.prompt}}.
func (t *Template) Render(prompt string) (string, error) {
	var b strings.Builder
	if err := t.t.Execute(&b, map[string]any{"prompt": prompt}); err != nil {
		return "", types.WrapError(types.PIPELINE_FATAL, "rendering prompt template "+t.name, err)
	}
	return b.String(), nil
}
