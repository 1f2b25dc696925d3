package crucible

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/straylight-ai/crucible/artifact"
	"github.com/straylight-ai/crucible/augment"
	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/connector"
	"github.com/straylight-ai/crucible/connector/adapters"
	"github.com/straylight-ai/crucible/metric"
	"github.com/straylight-ai/crucible/redteam"
	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/runner"
)

// Framework is the public facade over the evaluation subsystems. One
// instance is safe for concurrent use; runners obtained from it each
// own their database handle and must be closed individually.
type Framework struct {
	cfg    config.Config
	store  *artifact.Store
	reg    *registry.Registry
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds a Framework: it ensures the artifact directories exist,
// registers every builtin plugin and scans the plugin directories for
// YAML manifests.
func New(cfg config.Config, opts ...Option) (*Framework, error) {
	fc := &frameworkConfig{}
	for _, opt := range opts {
		opt(fc)
	}
	if fc.logger == nil {
		fc.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if fc.tracer == nil {
		fc.tracer = otel.Tracer("github.com/straylight-ai/crucible")
	}
	if fc.registry == nil {
		fc.registry = registry.New()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	f := &Framework{
		cfg:    cfg,
		store:  artifact.NewStore(cfg, fc.logger),
		reg:    fc.registry,
		logger: fc.logger,
		tracer: fc.tracer,
	}
	if err := f.registerBuiltins(); err != nil {
		return nil, err
	}
	if err := f.scanManifests(); err != nil {
		return nil, err
	}
	return f, nil
}

// registerBuiltins installs the compiled-in plugins. Ids already
// present in a caller-supplied registry are left alone.
func (f *Framework) registerBuiltins() error {
	register := func(kind registry.Kind, id string, factory any) error {
		if f.reg.Has(kind, id) {
			return nil
		}
		return f.reg.Register(kind, id, factory, nil)
	}

	for id, factory := range adapters.Builtins() {
		if err := register(registry.KindConnector, id, connector.Factory(factory)); err != nil {
			return err
		}
	}
	for id, factory := range metric.Builtins() {
		if err := register(registry.KindMetric, id, factory); err != nil {
			return err
		}
	}
	if err := register(registry.KindContextStrategy, "add_previous_prompt",
		redteam.ContextStrategyFactory(func(map[string]any) (redteam.ContextStrategy, error) {
			return redteam.NewAddPreviousPrompt(), nil
		})); err != nil {
		return err
	}
	if err := register(registry.KindAttackModule, "charswap_attack",
		redteam.AttackFactory(func(map[string]any) (redteam.AttackModule, error) {
			return redteam.NewCharSwapAttack(), nil
		})); err != nil {
		return err
	}
	if err := register(registry.KindAttackModule, "homoglyph_attack",
		redteam.AttackFactory(func(map[string]any) (redteam.AttackModule, error) {
			return redteam.NewHomoglyphAttack(), nil
		})); err != nil {
		return err
	}
	if err := register(registry.KindProcessingModule, "benchmarking",
		runner.ModuleFactory(runner.NewBenchmarkingModule)); err != nil {
		return err
	}
	return register(registry.KindProcessingModule, "red-teaming",
		runner.ModuleFactory(redteam.NewProcessingModule))
}

// scanManifests loads YAML plugin manifests from every plugin
// directory.
func (f *Framework) scanManifests() error {
	for _, dir := range []string{
		f.cfg.Dirs.Connectors,
		f.cfg.Dirs.Metrics,
		f.cfg.Dirs.AttackModules,
		f.cfg.Dirs.ContextStrategy,
		f.cfg.Dirs.ResultsModules,
	} {
		if err := f.reg.ScanManifests(dir); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the plugin registry for custom registrations.
func (f *Framework) Registry() *registry.Registry { return f.reg }

// Config returns the configuration snapshot.
func (f *Framework) Config() config.Config { return f.cfg }

// Augmentor returns an augmentor seeded for reproducible perturbation.
func (f *Framework) Augmentor(seed int64) *augment.Augmentor {
	return augment.New(f.store, seed, f.logger)
}

// deps bundles the runner dependencies.
func (f *Framework) deps(progress runner.ProgressCallback) runner.Deps {
	return runner.Deps{
		Config:   f.cfg,
		Store:    f.store,
		Registry: f.reg,
		Logger:   f.logger,
		Tracer:   f.tracer,
		Progress: progress,
	}
}
