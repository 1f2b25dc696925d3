package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.FromEnv(t.TempDir())
	require.NoError(t, cfg.EnsureDirs())
	return NewStore(cfg, nil)
}

func TestEndpointRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateEndpoint(types.Endpoint{
		Name:              "My OpenAI GPT4o",
		ConnectorType:     "openai",
		URI:               "https://api.openai.com/v1",
		Token:             "sk-test",
		MaxCallsPerSecond: 2,
		MaxConcurrency:    1,
		Model:             "gpt-4o",
		Params:            map[string]any{"temperature": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "my-openai-gpt4o", id)

	ep, err := s.ReadEndpoint(id)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", ep.Model)
	assert.Equal(t, 0.5, ep.ParamFloat("temperature", 0))
	assert.NotEmpty(t, ep.CreatedDate, "created_date derived on read")

	model := "gpt-4o-mini"
	updated, err := s.UpdateEndpoint(id, types.EndpointUpdate{Model: &model})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", updated.Model)

	ids, err := s.List(KindEndpoint)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	require.NoError(t, s.Delete(KindEndpoint, id))
	_, err = s.ReadEndpoint(id)
	assert.True(t, types.IsNotFound(err))
}

func TestCreateEndpointInvalid(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateEndpoint(types.Endpoint{Name: "!!!"})
	assert.True(t, types.IsValidation(err))

	_, err = s.CreateEndpoint(types.Endpoint{Name: "ok", ConnectorType: "openai"})
	assert.True(t, types.IsValidation(err), "zero rate must fail validation")
}

func TestRecipeStats(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateDataset(types.Dataset{
		Name: "arc easy",
		Examples: []types.DatasetExample{
			{Input: "2+2=?", Target: types.NewTarget("4")},
			{Input: "3+3=?", Target: types.NewTarget("6")},
		},
	})
	require.NoError(t, err)

	id, err := s.CreateRecipe(types.Recipe{
		Name:     "ARC",
		Datasets: []string{"arc-easy"},
		Metrics:  []string{"exactstrmatch"},
		Tags:     []string{"mcq"},
		GradingScale: types.GradingScale{
			"A": {80, 100}, "B": {60, 79}, "C": {40, 59}, "D": {20, 39}, "E": {0, 19},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "arc", id)

	r, err := s.ReadRecipe(id)
	require.NoError(t, err)
	require.NotNil(t, r.Stats)
	assert.Equal(t, 1, r.Stats.NumOfDatasets)
	assert.Equal(t, 1, r.Stats.NumOfTags)
	assert.Equal(t, 2, r.Stats.NumOfDatasetPrompts["arc-easy"])
}

func TestRecipeMissingDataset(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateRecipe(types.Recipe{
		Name:     "broken",
		Datasets: []string{"nope"},
		Metrics:  []string{"exactstrmatch"},
	})
	assert.True(t, types.IsNotFound(err))
}

func TestCookbookReferencesRecipes(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateDataset(types.Dataset{
		Name:     "tiny",
		Examples: []types.DatasetExample{{Input: "x", Target: types.NewTarget("y")}},
	})
	require.NoError(t, err)
	_, err = s.CreateRecipe(types.Recipe{Name: "one", Datasets: []string{"tiny"}, Metrics: []string{"exactstrmatch"}})
	require.NoError(t, err)

	id, err := s.CreateCookbook(types.Cookbook{Name: "My Book", Recipes: []string{"one"}})
	require.NoError(t, err)
	assert.Equal(t, "my-book", id)

	_, err = s.CreateCookbook(types.Cookbook{Name: "Bad Book", Recipes: []string{"missing"}})
	assert.True(t, types.IsNotFound(err))
}

func TestStreamDataset(t *testing.T) {
	s := newTestStore(t)

	examples := []types.DatasetExample{
		{Input: "a", Target: types.NewTarget("1")},
		{Input: "b", Target: types.NewTargetList("2", "two")},
		{Input: "c", Target: types.NewTarget("3")},
	}
	_, err := s.CreateDataset(types.Dataset{Name: "stream me", Examples: examples})
	require.NoError(t, err)

	st, err := s.StreamDataset("stream-me")
	require.NoError(t, err)
	defer st.Close()

	var got []types.DatasetExample
	for {
		ex, ok, err := st.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, ex)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Input)
	assert.Equal(t, []string{"2", "two"}, got[1].Target.Values())

	n, err := s.CountDatasetExamples("stream-me")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStreamDatasetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StreamDataset("ghost")
	assert.True(t, types.IsNotFound(err))
}

func TestCreateOverwrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(KindPromptTemplate, "t", types.PromptTemplate{Name: "t", Template: "v1 {{.prompt}}"}))
	require.NoError(t, s.Create(KindPromptTemplate, "t", types.PromptTemplate{Name: "t", Template: "v2 {{.prompt}}"}))

	pt, err := s.ReadPromptTemplate("t")
	require.NoError(t, err)
	assert.Equal(t, "v2 {{.prompt}}", pt.Template)

	// the artifact lives where the kind directory says it does
	assert.FileExists(t, filepath.Join(s.Dir(KindPromptTemplate), "t.json"))
}
