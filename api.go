package crucible

import (
	"context"
	"os"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/datastore"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/runner"
	"github.com/straylight-ai/crucible/types"
)

// Endpoints

// CreateEndpoint persists a new endpoint and returns its slug id.
func (f *Framework) CreateEndpoint(ep types.Endpoint) (string, error) {
	return f.store.CreateEndpoint(ep)
}

// ReadEndpoint loads one endpoint.
func (f *Framework) ReadEndpoint(id string) (types.Endpoint, error) {
	return f.store.ReadEndpoint(id)
}

// UpdateEndpoint patches an endpoint.
func (f *Framework) UpdateEndpoint(id string, u types.EndpointUpdate) (types.Endpoint, error) {
	return f.store.UpdateEndpoint(id, u)
}

// DeleteEndpoint removes an endpoint artifact.
func (f *Framework) DeleteEndpoint(id string) error {
	return f.store.Delete(artifact.KindEndpoint, id)
}

// ListEndpoints returns all endpoint ids.
func (f *Framework) ListEndpoints() ([]string, error) {
	return f.store.List(artifact.KindEndpoint)
}

// Recipes

// CreateRecipe persists a new recipe and returns its slug id.
func (f *Framework) CreateRecipe(r types.Recipe) (string, error) {
	return f.store.CreateRecipe(r)
}

// ReadRecipe loads one recipe with computed stats.
func (f *Framework) ReadRecipe(id string) (types.Recipe, error) {
	return f.store.ReadRecipe(id)
}

// UpdateRecipe patches a recipe.
func (f *Framework) UpdateRecipe(id string, u types.RecipeUpdate) (types.Recipe, error) {
	return f.store.UpdateRecipe(id, u)
}

// DeleteRecipe removes a recipe artifact.
func (f *Framework) DeleteRecipe(id string) error {
	return f.store.Delete(artifact.KindRecipe, id)
}

// ListRecipes returns all recipe ids.
func (f *Framework) ListRecipes() ([]string, error) {
	return f.store.List(artifact.KindRecipe)
}

// Cookbooks

// CreateCookbook persists a new cookbook and returns its slug id.
func (f *Framework) CreateCookbook(c types.Cookbook) (string, error) {
	return f.store.CreateCookbook(c)
}

// ReadCookbook loads one cookbook.
func (f *Framework) ReadCookbook(id string) (types.Cookbook, error) {
	return f.store.ReadCookbook(id)
}

// UpdateCookbook patches a cookbook.
func (f *Framework) UpdateCookbook(id string, u types.CookbookUpdate) (types.Cookbook, error) {
	return f.store.UpdateCookbook(id, u)
}

// DeleteCookbook removes a cookbook artifact.
func (f *Framework) DeleteCookbook(id string) error {
	return f.store.Delete(artifact.KindCookbook, id)
}

// ListCookbooks returns all cookbook ids.
func (f *Framework) ListCookbooks() ([]string, error) {
	return f.store.List(artifact.KindCookbook)
}

// Datasets and prompt templates

// CreateDataset persists a dataset and returns its slug id.
func (f *Framework) CreateDataset(d types.Dataset) (string, error) {
	return f.store.CreateDataset(d)
}

// DeleteDataset removes a dataset artifact.
func (f *Framework) DeleteDataset(id string) error {
	return f.store.Delete(artifact.KindDataset, id)
}

// ListDatasets returns all dataset ids.
func (f *Framework) ListDatasets() ([]string, error) {
	return f.store.List(artifact.KindDataset)
}

// CreatePromptTemplate persists a template and returns its slug id.
func (f *Framework) CreatePromptTemplate(pt types.PromptTemplate) (string, error) {
	return f.store.CreatePromptTemplate(pt)
}

// ListPromptTemplates returns all template ids.
func (f *Framework) ListPromptTemplates() ([]string, error) {
	return f.store.List(artifact.KindPromptTemplate)
}

// Metrics

// ListMetrics returns every registered metric plugin id.
func (f *Framework) ListMetrics() []string {
	return f.reg.List(registry.KindMetric)
}

// DeleteMetric deregisters a metric plugin for the lifetime of this
// framework. Builtins reappear on the next New.
func (f *Framework) DeleteMetric(id string) error {
	return f.reg.Deregister(registry.KindMetric, id)
}

// Runners

// CreateRunner creates a runner with its database file and returns the
// open handle. Close it when done.
func (f *Framework) CreateRunner(ctx context.Context, name string, endpoints []string, description string, progress runner.ProgressCallback) (*runner.Runner, error) {
	return runner.Create(ctx, f.deps(progress), name, endpoints, description)
}

// LoadRunner reopens an existing runner.
func (f *Framework) LoadRunner(ctx context.Context, runnerID string, progress runner.ProgressCallback) (*runner.Runner, error) {
	return runner.Load(ctx, f.deps(progress), runnerID)
}

// ReadRunner returns a runner's durable metadata without opening it.
func (f *Framework) ReadRunner(id string) (types.RunnerMetadata, error) {
	return f.store.ReadRunnerMetadata(id)
}

// ListRunners returns all runner ids.
func (f *Framework) ListRunners() ([]string, error) {
	return f.store.List(artifact.KindRunner)
}

// DeleteRunner removes a runner's metadata artifact and database file.
// The runner must not be open.
func (f *Framework) DeleteRunner(id string) error {
	meta, err := f.store.ReadRunnerMetadata(id)
	if err != nil {
		return err
	}
	if err := f.store.Delete(artifact.KindRunner, id); err != nil {
		return err
	}
	if err := os.Remove(meta.DatabaseFile); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.ARTIFACT_IO_ERROR, "removing runner database", err)
	}
	return nil
}

// Sessions

// withRunnerStore opens a runner's database for one operation.
func (f *Framework) withRunnerStore(ctx context.Context, runnerID string, op func(db datastore.Store, meta types.RunnerMetadata) error) error {
	meta, err := f.store.ReadRunnerMetadata(runnerID)
	if err != nil {
		return err
	}
	db, err := datastore.OpenSQLite(ctx, meta.DatabaseFile)
	if err != nil {
		return err
	}
	defer db.Close()
	return op(db, meta)
}

// ReadSession returns a runner's red-team session, or nil when the
// runner has not done red-team work yet. Sessions are created by the
// first red-team run, never by reads.
func (f *Framework) ReadSession(ctx context.Context, runnerID string) (*types.Session, error) {
	var session *types.Session
	err := f.withRunnerStore(ctx, runnerID, func(db datastore.Store, meta types.RunnerMetadata) error {
		var err error
		session, err = db.ReadSession(ctx)
		return err
	})
	return session, err
}

// UpdateSession patches a runner's existing session.
func (f *Framework) UpdateSession(ctx context.Context, runnerID string, u types.SessionUpdate) (*types.Session, error) {
	var session *types.Session
	err := f.withRunnerStore(ctx, runnerID, func(db datastore.Store, meta types.RunnerMetadata) error {
		var err error
		session, err = db.ReadSession(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			return &types.NotFoundError{Kind: "session", ID: runnerID}
		}
		session.Apply(u)
		return db.SaveSession(ctx, *session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a runner's session and its chat histories.
func (f *Framework) DeleteSession(ctx context.Context, runnerID string) error {
	return f.withRunnerStore(ctx, runnerID, func(db datastore.Store, meta types.RunnerMetadata) error {
		return db.DeleteSession(ctx)
	})
}

// GetChats returns the full chat history per endpoint of a runner's
// session.
func (f *Framework) GetChats(ctx context.Context, runnerID string) (map[string][]types.ChatRecord, error) {
	chats := map[string][]types.ChatRecord{}
	err := f.withRunnerStore(ctx, runnerID, func(db datastore.Store, meta types.RunnerMetadata) error {
		session, err := db.ReadSession(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
		for ep, table := range session.ChatIDs {
			records, err := db.ReadChatRecords(ctx, table, 0)
			if err != nil {
				return err
			}
			chats[ep] = records
		}
		return nil
	})
	return chats, err
}

// ListSessions returns the ids of runners with a red-team session.
func (f *Framework) ListSessions(ctx context.Context) ([]string, error) {
	runners, err := f.store.List(artifact.KindRunner)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range runners {
		err := f.withRunnerStore(ctx, id, func(db datastore.Store, meta types.RunnerMetadata) error {
			session, err := db.ReadSession(ctx)
			if err != nil {
				return err
			}
			if session != nil {
				ids = append(ids, id)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// SendPrompt runs one manual red-team round on a runner and returns
// the finished run.
func (f *Framework) SendPrompt(ctx context.Context, runnerID string, manual types.ManualRTArgs) (*types.Run, error) {
	r, err := f.LoadRunner(ctx, runnerID, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Run(ctx, types.RunnerArgs{ManualRTArgs: &manual})
}

// Results

// ReadResult loads one result artifact.
func (f *Framework) ReadResult(id string) (runner.ResultArtifact, error) {
	var art runner.ResultArtifact
	err := f.store.Read(artifact.KindResult, id, &art)
	return art, err
}

// DeleteResult removes a result artifact.
func (f *Framework) DeleteResult(id string) error {
	return f.store.Delete(artifact.KindResult, id)
}

// ListResults returns all result artifact ids.
func (f *Framework) ListResults() ([]string, error) {
	return f.store.List(artifact.KindResult)
}
