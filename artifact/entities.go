package artifact

import (
	"github.com/straylight-ai/crucible/types"
)

const createdDateLayout = "2006-01-02 15:04:05"

// CreateEndpoint slugifies the endpoint name into its id, validates and
// persists it. Returns the id.
func (s *Store) CreateEndpoint(ep types.Endpoint) (string, error) {
	id, err := types.Slugify(ep.Name)
	if err != nil {
		return "", err
	}
	ep.ID = id
	ep.CreatedDate = "" // derived on read, never persisted
	if err := ep.Validate(); err != nil {
		return "", err
	}
	return id, s.Create(KindEndpoint, id, ep)
}

// ReadEndpoint loads an endpoint and derives its created_date from the
// artifact file's change time.
func (s *Store) ReadEndpoint(id string) (types.Endpoint, error) {
	var ep types.Endpoint
	if err := s.Read(KindEndpoint, id, &ep); err != nil {
		return types.Endpoint{}, err
	}
	if mt, err := s.ModTime(KindEndpoint, id); err == nil {
		ep.CreatedDate = mt.Format(createdDateLayout)
	}
	return ep, nil
}

// UpdateEndpoint applies a typed patch to an endpoint.
func (s *Store) UpdateEndpoint(id string, u types.EndpointUpdate) (types.Endpoint, error) {
	ep, err := s.ReadEndpoint(id)
	if err != nil {
		return types.Endpoint{}, err
	}
	if err := ep.Apply(u); err != nil {
		return types.Endpoint{}, err
	}
	ep.CreatedDate = ""
	return ep, s.Create(KindEndpoint, id, ep)
}

// CreateRecipe slugifies, validates and persists a recipe. Every
// referenced dataset must already exist.
func (s *Store) CreateRecipe(r types.Recipe) (string, error) {
	id, err := types.Slugify(r.Name)
	if err != nil {
		return "", err
	}
	r.ID = id
	r.Stats = nil
	if err := r.Validate(); err != nil {
		return "", err
	}
	for _, ds := range r.Datasets {
		if !s.Exists(KindDataset, ds) {
			return "", &types.NotFoundError{Kind: string(KindDataset), ID: ds}
		}
	}
	return id, s.Create(KindRecipe, id, r)
}

// ReadRecipe loads a recipe and computes its stats block.
func (s *Store) ReadRecipe(id string) (types.Recipe, error) {
	var r types.Recipe
	if err := s.Read(KindRecipe, id, &r); err != nil {
		return types.Recipe{}, err
	}
	stats := &types.RecipeStats{
		NumOfTags:            len(r.Tags),
		NumOfDatasets:        len(r.Datasets),
		NumOfPromptTemplates: len(r.PromptTemplates),
		NumOfMetrics:         len(r.Metrics),
		NumOfDatasetPrompts:  make(map[string]int, len(r.Datasets)),
	}
	for _, ds := range r.Datasets {
		n, err := s.CountDatasetExamples(ds)
		if err != nil {
			continue // missing datasets surface when the recipe runs
		}
		stats.NumOfDatasetPrompts[ds] = n
	}
	r.Stats = stats
	return r, nil
}

// UpdateRecipe applies a typed patch to a recipe.
func (s *Store) UpdateRecipe(id string, u types.RecipeUpdate) (types.Recipe, error) {
	var r types.Recipe
	if err := s.Read(KindRecipe, id, &r); err != nil {
		return types.Recipe{}, err
	}
	if err := r.Apply(u); err != nil {
		return types.Recipe{}, err
	}
	r.Stats = nil
	return r, s.Create(KindRecipe, id, r)
}

// CreateCookbook slugifies, validates and persists a cookbook. Every
// referenced recipe must already exist.
func (s *Store) CreateCookbook(c types.Cookbook) (string, error) {
	id, err := types.Slugify(c.Name)
	if err != nil {
		return "", err
	}
	c.ID = id
	if err := c.Validate(); err != nil {
		return "", err
	}
	for _, rec := range c.Recipes {
		if !s.Exists(KindRecipe, rec) {
			return "", &types.NotFoundError{Kind: string(KindRecipe), ID: rec}
		}
	}
	return id, s.Create(KindCookbook, id, c)
}

// ReadCookbook loads a cookbook.
func (s *Store) ReadCookbook(id string) (types.Cookbook, error) {
	var c types.Cookbook
	err := s.Read(KindCookbook, id, &c)
	return c, err
}

// UpdateCookbook applies a typed patch to a cookbook.
func (s *Store) UpdateCookbook(id string, u types.CookbookUpdate) (types.Cookbook, error) {
	var c types.Cookbook
	if err := s.Read(KindCookbook, id, &c); err != nil {
		return types.Cookbook{}, err
	}
	if err := c.Apply(u); err != nil {
		return types.Cookbook{}, err
	}
	return c, s.Create(KindCookbook, id, c)
}

// CreateDataset slugifies, validates and persists a dataset, filling
// num_of_dataset_prompts from the example count.
func (s *Store) CreateDataset(d types.Dataset) (string, error) {
	id, err := types.Slugify(d.Name)
	if err != nil {
		return "", err
	}
	d.ID = id
	if err := d.Validate(); err != nil {
		return "", err
	}
	d.NumOfDatasetPrompts = len(d.Examples)
	return id, s.Create(KindDataset, id, d)
}

// ReadPromptTemplate loads a prompt template.
func (s *Store) ReadPromptTemplate(id string) (types.PromptTemplate, error) {
	var pt types.PromptTemplate
	err := s.Read(KindPromptTemplate, id, &pt)
	return pt, err
}

// CreatePromptTemplate slugifies, validates and persists a template.
func (s *Store) CreatePromptTemplate(pt types.PromptTemplate) (string, error) {
	id, err := types.Slugify(pt.Name)
	if err != nil {
		return "", err
	}
	if err := pt.Validate(); err != nil {
		return "", err
	}
	return id, s.Create(KindPromptTemplate, id, pt)
}

// CreateRunnerMetadata persists a runner's metadata artifact.
func (s *Store) CreateRunnerMetadata(m types.RunnerMetadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.Create(KindRunner, m.ID, m)
}

// ReadRunnerMetadata loads a runner's metadata artifact.
func (s *Store) ReadRunnerMetadata(id string) (types.RunnerMetadata, error) {
	var m types.RunnerMetadata
	err := s.Read(KindRunner, id, &m)
	return m, err
}
