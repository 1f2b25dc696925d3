// Package prompt expands a recipe's datasets and prompt templates into
// the lazy sequence of PromptArguments the benchmark pipeline consumes.
// Expansion is deterministic: the same selection percentage and seed
// always pick the same example indices.
package prompt

import (
	"log/slog"
	"math/rand"
	"sort"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/types"
)

// Spec names what to expand. SelectionPercentage in (0,1] controls
// seeded sampling without replacement; 1 means every example.
type Spec struct {
	RecipeID            string
	DatasetIDs          []string
	PromptTemplateIDs   []string
	SelectionPercentage float64
	RandomSeed          int64
}

// Generator is a lazy, finite, non-restartable sequence of
// PromptArguments. Emission order is dataset-major, then
// template-major, then prompt-index ascending. Callers must drain or
// Close it; re-running a recipe builds a new Generator.
type Generator struct {
	store  *artifact.Store
	logger *slog.Logger
	spec   Spec

	templates []renderedTemplate // empty entry means no template

	datasetIdx  int
	templateIdx int
	stream      *artifact.ExampleStream
	selected    []int // selected example indices for current dataset, ascending; nil means all
	selectedPos int
	streamIdx   int // index of the next example the stream will yield
	done        bool
}

type renderedTemplate struct {
	id   string
	tmpl *Template
}

// NewGenerator validates the spec, resolves the prompt templates once
// and positions the cursor before the first PromptArguments.
func NewGenerator(store *artifact.Store, spec Spec, logger *slog.Logger) (*Generator, error) {
	if spec.SelectionPercentage <= 0 || spec.SelectionPercentage > 1 {
		return nil, &types.ValidationError{Field: "prompt_selection_percentage", Message: "must be in (0,1]"}
	}
	if len(spec.DatasetIDs) == 0 {
		return nil, &types.ValidationError{Field: "datasets", Message: "at least one dataset is required"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var templates []renderedTemplate
	if len(spec.PromptTemplateIDs) == 0 {
		templates = []renderedTemplate{{id: types.NoTemplateID}}
	} else {
		for _, id := range spec.PromptTemplateIDs {
			pt, err := store.ReadPromptTemplate(id)
			if err != nil {
				return nil, err
			}
			tmpl, err := Parse(id, pt.Template)
			if err != nil {
				return nil, err
			}
			templates = append(templates, renderedTemplate{id: id, tmpl: tmpl})
		}
	}

	return &Generator{
		store:     store,
		logger:    logger,
		spec:      spec,
		templates: templates,
	}, nil
}

// selectIndices picks the sampled example indices for one dataset.
// Sampling is uniform without replacement; the returned indices are
// ascending so the stream can be walked once. A nil result means every
// example is selected.
func selectIndices(total int, pct float64, seed int64) []int {
	if pct >= 1 {
		return nil
	}
	n := int(float64(total) * pct)
	if n == 0 {
		return []int{}
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(total)[:n]
	sort.Ints(perm)
	return perm
}

// openNext advances to the next (dataset, template) pair, opening the
// dataset stream and computing the sampled indices.
func (g *Generator) openNext() error {
	for {
		if g.stream != nil {
			g.stream.Close()
			g.stream = nil
		}
		if g.templateIdx >= len(g.templates) {
			g.templateIdx = 0
			g.datasetIdx++
		}
		if g.datasetIdx >= len(g.spec.DatasetIDs) {
			g.done = true
			return nil
		}
		dsID := g.spec.DatasetIDs[g.datasetIdx]

		if g.spec.SelectionPercentage < 1 {
			total, err := g.store.CountDatasetExamples(dsID)
			if err != nil {
				return err
			}
			g.selected = selectIndices(total, g.spec.SelectionPercentage, g.spec.RandomSeed)
			if len(g.selected) == 0 {
				g.logger.Warn("prompt selection yields zero examples, skipping dataset",
					"dataset", dsID,
					"selection_percentage", g.spec.SelectionPercentage,
					"total_examples", total)
				g.templateIdx = 0
				g.datasetIdx++
				continue
			}
		} else {
			g.selected = nil
		}

		stream, err := g.store.StreamDataset(dsID)
		if err != nil {
			return err
		}
		g.stream = stream
		g.selectedPos = 0
		g.streamIdx = 0
		return nil
	}
}

// Next returns the next PromptArguments. The second return is false
// once the sequence is exhausted.
func (g *Generator) Next() (types.PromptArguments, bool, error) {
	for {
		if g.done {
			return types.PromptArguments{}, false, nil
		}
		if g.stream == nil {
			if err := g.openNext(); err != nil {
				return types.PromptArguments{}, false, err
			}
			continue
		}

		ex, exampleIdx, ok, err := g.nextSelected()
		if err != nil {
			return types.PromptArguments{}, false, err
		}
		if !ok {
			// current (dataset, template) pair is drained
			g.stream.Close()
			g.stream = nil
			g.templateIdx++
			continue
		}

		entry := g.templates[g.templateIdx]
		text := ex.Input
		if entry.tmpl != nil {
			text, err = entry.tmpl.Render(ex.Input)
			if err != nil {
				return types.PromptArguments{}, false, err
			}
		}
		return types.PromptArguments{
			RecipeID:         g.spec.RecipeID,
			DatasetID:        g.spec.DatasetIDs[g.datasetIdx],
			PromptTemplateID: entry.id,
			PromptIndex:      exampleIdx,
			Prompt:           text,
			Target:           ex.Target,
		}, true, nil
	}
}

// nextSelected walks the stream to the next sampled example.
func (g *Generator) nextSelected() (types.DatasetExample, int, bool, error) {
	for {
		if g.selected != nil && g.selectedPos >= len(g.selected) {
			return types.DatasetExample{}, 0, false, nil
		}
		ex, ok, err := g.stream.Next()
		if err != nil || !ok {
			return types.DatasetExample{}, 0, ok, err
		}
		idx := g.streamIdx
		g.streamIdx++
		if g.selected == nil {
			return ex, idx, true, nil
		}
		if idx == g.selected[g.selectedPos] {
			g.selectedPos++
			return ex, idx, true, nil
		}
	}
}

// Close releases the open dataset stream, if any.
func (g *Generator) Close() error {
	g.done = true
	if g.stream != nil {
		err := g.stream.Close()
		g.stream = nil
		return err
	}
	return nil
}
