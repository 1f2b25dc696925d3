package crucible_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crucible "github.com/straylight-ai/crucible"
	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/types"
)

func newFramework(t *testing.T, opts ...crucible.Option) *crucible.Framework {
	t.Helper()
	cfg := config.FromEnv(t.TempDir())
	f, err := crucible.New(cfg, opts...)
	require.NoError(t, err)
	return f
}

// seed creates a mock endpoint and a one-example recipe through the
// facade.
func seed(t *testing.T, f *crucible.Framework) (endpointID, recipeID string) {
	t.Helper()
	endpointID, err := f.CreateEndpoint(types.Endpoint{
		Name:              "mock model",
		ConnectorType:     "mock",
		MaxCallsPerSecond: 1000,
		MaxConcurrency:    4,
		Params:            map[string]any{"mock_response": "4"},
	})
	require.NoError(t, err)

	dsID, err := f.CreateDataset(types.Dataset{
		Name:     "arith",
		Examples: []types.DatasetExample{{Input: "2+2", Target: types.NewTarget("4")}},
	})
	require.NoError(t, err)

	recipeID, err = f.CreateRecipe(types.Recipe{
		Name:     "arith bench",
		Datasets: []string{dsID},
		Metrics:  []string{"exactstrmatch"},
		GradingScale: types.GradingScale{
			"A": {80, 100}, "B": {60, 79}, "C": {40, 59}, "D": {20, 39}, "E": {0, 19},
		},
	})
	require.NoError(t, err)
	return endpointID, recipeID
}

func TestNewRegistersBuiltins(t *testing.T) {
	f := newFramework(t)
	reg := f.Registry()

	for _, id := range []string{"openai", "anthropic", "ollama", "openai-compatible", "mock"} {
		assert.True(t, reg.Has(registry.KindConnector, id), id)
	}
	assert.ElementsMatch(t, []string{"exactstrmatch", "relaxstrmatch"}, f.ListMetrics())
	assert.True(t, reg.Has(registry.KindContextStrategy, "add_previous_prompt"))
	assert.True(t, reg.Has(registry.KindAttackModule, "charswap_attack"))
	assert.True(t, reg.Has(registry.KindAttackModule, "homoglyph_attack"))
	assert.True(t, reg.Has(registry.KindProcessingModule, "benchmarking"))
	assert.True(t, reg.Has(registry.KindProcessingModule, "red-teaming"))
}

func TestWithRegistryKeepsPriorRegistrations(t *testing.T) {
	reg := registry.New()
	// shadow a builtin id before construction
	require.NoError(t, reg.Register(registry.KindConnector, "openai",
		"custom-factory", map[string]any{"custom": true}))

	newFramework(t, crucible.WithRegistry(reg))

	entry, err := reg.Load(registry.KindConnector, "openai")
	require.NoError(t, err)
	assert.Equal(t, "custom-factory", entry.Factory, "builtin does not clobber the prior registration")
	assert.Equal(t, map[string]any{"custom": true}, entry.Params)
}

func TestNewScansPluginManifests(t *testing.T) {
	cfg := config.FromEnv(t.TempDir())
	require.NoError(t, cfg.EnsureDirs())
	manifest := []byte("kind: metric\nid: strict-match\nadapter: exactstrmatch\nparams:\n  note: aliased\n")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dirs.Metrics, "strict.yaml"), manifest, 0o644))

	f, err := crucible.New(cfg)
	require.NoError(t, err)

	entry, err := f.Registry().Load(registry.KindMetric, "strict-match")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"note": "aliased"}, entry.Params)
	assert.Contains(t, f.ListMetrics(), "strict-match")
}

func TestFrameworkBenchmarkFlow(t *testing.T) {
	f := newFramework(t)
	ctx := context.Background()
	epID, recipeID := seed(t, f)

	ids, err := f.ListEndpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{epID}, ids)

	r, err := f.CreateRunner(ctx, "facade runner", []string{epID}, "", nil)
	require.NoError(t, err)
	run, err := r.Run(ctx, types.RunnerArgs{Recipes: []string{recipeID}})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, types.RunStatusCompleted, run.Status)

	art, err := f.ReadResult(run.ResultsFile)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusCompleted, art.Metadata.Status)
	assert.Equal(t, []string{recipeID}, art.Metadata.Recipes)

	results, err := f.ListResults()
	require.NoError(t, err)
	assert.Equal(t, []string{run.ResultsFile}, results)

	meta, err := f.ReadRunner("facade-runner")
	require.NoError(t, err)
	dbFile := meta.DatabaseFile
	assert.FileExists(t, dbFile)

	require.NoError(t, f.DeleteRunner("facade-runner"))
	assert.NoFileExists(t, dbFile, "runner database removed with the runner")
	runners, err := f.ListRunners()
	require.NoError(t, err)
	assert.Empty(t, runners)
}

func TestFrameworkSessionFlow(t *testing.T) {
	f := newFramework(t)
	ctx := context.Background()
	epID, _ := seed(t, f)

	r, err := f.CreateRunner(ctx, "probe runner", []string{epID}, "", nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// reading never creates: the session only exists after red-team work
	session, err := f.ReadSession(ctx, "probe-runner")
	require.NoError(t, err)
	assert.Nil(t, session)
	sessions, err := f.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	cs := "add_previous_prompt"
	_, err = f.UpdateSession(ctx, "probe-runner", types.SessionUpdate{ContextStrategy: &cs})
	assert.True(t, types.IsNotFound(err))

	run, err := f.SendPrompt(ctx, "probe-runner", types.ManualRTArgs{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusCompleted, run.Status)
	assert.Equal(t, types.RunnerTypeRedTeam, run.RunnerType)

	session, err = f.ReadSession(ctx, "probe-runner")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "probe-runner", session.SessionID)
	assert.Contains(t, session.ChatIDs, epID)

	session, err = f.UpdateSession(ctx, "probe-runner", types.SessionUpdate{ContextStrategy: &cs})
	require.NoError(t, err)
	assert.Equal(t, cs, session.ContextStrategy)

	chats, err := f.GetChats(ctx, "probe-runner")
	require.NoError(t, err)
	require.Len(t, chats[epID], 1)
	assert.Equal(t, "hello", chats[epID][0].Prompt)

	sessions, err = f.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"probe-runner"}, sessions)

	require.NoError(t, f.DeleteSession(ctx, "probe-runner"))
	chats, err = f.GetChats(ctx, "probe-runner")
	require.NoError(t, err)
	assert.Empty(t, chats)
	sessions, err = f.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestDeleteMetric(t *testing.T) {
	f := newFramework(t)
	require.NoError(t, f.DeleteMetric("relaxstrmatch"))
	assert.Equal(t, []string{"exactstrmatch"}, f.ListMetrics())

	err := f.DeleteMetric("no-such-metric")
	assert.True(t, types.HasCode(err, types.PLUGIN_NOT_FOUND))
}
