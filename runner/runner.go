// Package runner owns the execution lifecycle: each Runner holds one
// run database, dispatches work orders to a processing module resolved
// through the registry, streams coalesced progress snapshots and writes
// the result artifact even when a run is cancelled or fails.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/datastore"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/types"
)

// Deps bundles the framework services a runner needs.
type Deps struct {
	Config   config.Config
	Store    *artifact.Store
	Registry *registry.Registry
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Progress ProgressCallback
}

// ProcessingModule executes one work order against a runner. The
// returned results value becomes the body of the result artifact;
// per-prompt failures go into run.ErrorMessages, fatal failures into
// the error return.
type ProcessingModule interface {
	Name() string
	Run(ctx context.Context, r *Runner, run *types.Run, args types.RunnerArgs) (any, error)
}

// ModuleFactory builds a processing module instance per run.
type ModuleFactory func() ProcessingModule

// Runner is a durable execution handle. It owns its database file
// exclusively; concurrent runs on one runner are not supported.
type Runner struct {
	meta   types.RunnerMetadata
	db     datastore.Store
	deps   Deps
	logger *slog.Logger

	token        *types.CancellationToken
	runDone      chan struct{}
	lastProgress *Progress
}

// Create slugifies the name, creates the runner database file, writes
// runner metadata to both the database and the artifact store, and
// returns an open handle. Every endpoint must already exist.
func Create(ctx context.Context, deps Deps, name string, endpoints []string, description string) (*Runner, error) {
	id, err := types.Slugify(name)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, &types.ValidationError{Field: "endpoints", Message: "at least one endpoint is required"}
	}
	for _, ep := range endpoints {
		if _, err := deps.Store.ReadEndpoint(ep); err != nil {
			return nil, err
		}
	}

	meta := types.RunnerMetadata{
		ID:           id,
		Name:         name,
		Endpoints:    endpoints,
		DatabaseFile: filepath.Join(deps.Config.Dirs.Databases, id+".db"),
		Description:  description,
	}
	db, err := datastore.OpenSQLite(ctx, meta.DatabaseFile)
	if err != nil {
		return nil, err
	}
	if err := db.SaveRunnerMetadata(ctx, meta); err != nil {
		db.Close()
		return nil, err
	}
	if err := deps.Store.CreateRunnerMetadata(meta); err != nil {
		db.Close()
		return nil, err
	}
	return newRunner(meta, db, deps), nil
}

// Load reopens an existing runner. It fails when the database file is
// missing; a runner's identity is its database.
func Load(ctx context.Context, deps Deps, runnerID string) (*Runner, error) {
	meta, err := deps.Store.ReadRunnerMetadata(runnerID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(meta.DatabaseFile); err != nil {
		return nil, &types.NotFoundError{Kind: "runner database", ID: meta.DatabaseFile}
	}
	db, err := datastore.OpenSQLite(ctx, meta.DatabaseFile)
	if err != nil {
		return nil, err
	}
	return newRunner(meta, db, deps), nil
}

func newRunner(meta types.RunnerMetadata, db datastore.Store, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		meta:   meta,
		db:     db,
		deps:   deps,
		logger: logger.With("runner", meta.ID),
		token:  types.NewCancellationToken(),
	}
}

// Metadata returns the runner's durable identity.
func (r *Runner) Metadata() types.RunnerMetadata { return r.meta }

// Datastore exposes the run database to processing modules.
func (r *Runner) Datastore() datastore.Store { return r.db }

// Config exposes the configuration snapshot to processing modules.
func (r *Runner) Config() config.Config { return r.deps.Config }

// Store exposes the artifact store to processing modules.
func (r *Runner) Store() *artifact.Store { return r.deps.Store }

// Registry exposes the plugin registry to processing modules.
func (r *Runner) Registry() *registry.Registry { return r.deps.Registry }

// Logger exposes the runner-scoped logger to processing modules.
func (r *Runner) Logger() *slog.Logger { return r.logger }

// Token exposes the shared cancellation token to processing modules.
func (r *Runner) Token() *types.CancellationToken { return r.token }

// resolveModule picks the processing module: an explicit override wins,
// otherwise benchmarking when the args name recipes or cookbooks and
// red-teaming when they do not.
func resolveModule(args types.RunnerArgs) string {
	if args.ProcessingModule != "" {
		return args.ProcessingModule
	}
	if len(args.Recipes) > 0 || len(args.Cookbooks) > 0 {
		return "benchmarking"
	}
	return "red-teaming"
}

// Run executes one work order to completion. It blocks; callers wanting
// an async surface run it in a goroutine and use Cancel. The
// result artifact is written even when the run is cancelled or ends
// with errors.
func (r *Runner) Run(ctx context.Context, args types.RunnerArgs) (*types.Run, error) {
	if r.tracer() != nil {
		var span trace.Span
		ctx, span = r.tracer().Start(ctx, "runner.run")
		defer span.End()
	}

	moduleID := resolveModule(args)
	entry, err := r.deps.Registry.Load(registry.KindProcessingModule, moduleID)
	if err != nil {
		return nil, err
	}
	factory, ok := entry.Factory.(ModuleFactory)
	if !ok {
		return nil, types.NewError(types.PLUGIN_LOAD_FAILED,
			fmt.Sprintf("processing module %s has factory type %T", moduleID, entry.Factory))
	}
	module := factory()

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, types.WrapError(types.PIPELINE_FATAL, "encoding runner args", err)
	}
	runnerType := types.RunnerTypeBenchmark
	if moduleID == "red-teaming" {
		runnerType = types.RunnerTypeRedTeam
	}

	run := &types.Run{
		RunnerID:   r.meta.ID,
		RunnerType: runnerType,
		RunnerArgs: string(argsJSON),
		Endpoints:  r.meta.Endpoints,
		StartTime:  time.Now(),
		Status:     types.RunStatusPending,
	}
	if _, err := r.db.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	r.runDone = make(chan struct{})
	defer close(r.runDone)
	r.lastProgress = nil

	run.Status = types.RunStatusRunning
	r.flushProgress(ctx, run, Progress{})

	results, runErr := module.Run(ctx, r, run, args)

	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime).Seconds()
	switch {
	case runErr != nil:
		run.Status = types.RunStatusCancelled
		run.ErrorMessages = append(run.ErrorMessages, runErr.Error())
	case r.token.IsSet():
		run.Status = types.RunStatusCancelled
	case len(run.ErrorMessages) > 0:
		run.Status = types.RunStatusCompletedWithErrors
	default:
		run.Status = types.RunStatusCompleted
	}

	if err := r.writeResult(run, args, results); err != nil {
		r.logger.Error("writing result artifact", "run", run.RunID, "error", err)
		run.ErrorMessages = append(run.ErrorMessages, err.Error())
	}
	r.flushProgress(ctx, run, Progress{})

	r.logger.Info("run finished",
		"run", run.RunID, "status", run.Status, "duration", run.Duration,
		"errors", len(run.ErrorMessages))
	if runErr != nil {
		return run, runErr
	}
	return run, nil
}

// Cancel sets the shared cancellation token and waits for the in-flight
// run, if any, to reach a terminal state.
func (r *Runner) Cancel() {
	r.token.Set()
	if r.runDone != nil {
		<-r.runDone
	}
}

// Close releases the database handle.
func (r *Runner) Close() error {
	return r.db.Close()
}

func (r *Runner) tracer() trace.Tracer { return r.deps.Tracer }

// UpdateProgress flushes the run row and fires the coalesced progress
// callback. Processing modules call it around each unit of work; the
// row write always precedes the callback so a restart sees the last
// known status.
func (r *Runner) UpdateProgress(ctx context.Context, run *types.Run, p Progress) {
	r.flushProgress(ctx, run, p)
}

func (r *Runner) flushProgress(ctx context.Context, run *types.Run, p Progress) {
	run.Duration = time.Since(run.StartTime).Seconds()
	if err := r.db.UpdateRun(ctx, run); err != nil {
		r.logger.Error("flushing run row", "run", run.RunID, "error", err)
	}
	if p.CookbookTotal == 0 && r.lastProgress != nil {
		// terminal flushes keep the last reported position
		p.CurrentCookbookIndex = r.lastProgress.CurrentCookbookIndex
		p.CookbookTotal = r.lastProgress.CookbookTotal
		p.CurrentRecipeIndex = r.lastProgress.CurrentRecipeIndex
		p.RecipeTotal = r.lastProgress.RecipeTotal
	}
	p.RunID = run.RunID
	p.Duration = run.Duration
	p.Status = run.Status
	p.ErrorMessages = append([]string(nil), run.ErrorMessages...)

	if r.deps.Progress == nil {
		return
	}
	if r.lastProgress != nil && r.lastProgress.equal(p) {
		return
	}
	snapshot := p
	r.lastProgress = &snapshot
	r.deps.Progress(p)
}

// writeResult persists the result artifact. Its id is stable across
// reruns of the same run id.
func (r *Runner) writeResult(run *types.Run, args types.RunnerArgs, results any) error {
	id := fmt.Sprintf("%s-run-%d", r.meta.ID, run.RunID)
	art := ResultArtifact{
		Metadata: ResultMetadata{
			ID:                        id,
			StartTime:                 run.StartTime.Format("2006-01-02 15:04:05"),
			EndTime:                   run.EndTime.Format("2006-01-02 15:04:05"),
			Duration:                  run.Duration,
			Status:                    run.Status,
			Recipes:                   args.Recipes,
			Cookbooks:                 args.Cookbooks,
			Endpoints:                 r.meta.Endpoints,
			PromptSelectionPercentage: args.PromptSelectionPercentage,
			RandomSeed:                args.RandomSeed,
			SystemPrompt:              args.SystemPrompt,
		},
		Results: results,
	}
	if err := r.deps.Store.Create(artifact.KindResult, id, art); err != nil {
		return err
	}
	run.ResultsFile = id

	// mirror the artifact into the run row so the database alone can
	// answer what a past run produced
	raw, err := json.Marshal(results)
	if err != nil {
		return types.WrapError(types.PIPELINE_FATAL, "encoding raw results", err)
	}
	formatted, err := json.Marshal(art)
	if err != nil {
		return types.WrapError(types.PIPELINE_FATAL, "encoding result artifact", err)
	}
	run.RawResults = string(raw)
	run.Results = string(formatted)
	return nil
}
