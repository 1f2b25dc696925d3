// Package config builds the immutable configuration snapshot threaded
// through every Crucible constructor. Directories for artifacts and
// plugin manifests resolve from environment variables with sensible
// defaults and may be overlaid from a YAML file; after construction the
// snapshot is never mutated.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/straylight-ai/crucible/types"
)

// Dirs holds every artifact and plugin directory the framework reads.
type Dirs struct {
	Connectors          string `yaml:"connectors"`
	ConnectorsEndpoints string `yaml:"connectors_endpoints"`
	Recipes             string `yaml:"recipes"`
	Cookbooks           string `yaml:"cookbooks"`
	Datasets            string `yaml:"datasets"`
	Metrics             string `yaml:"metrics"`
	PromptTemplates     string `yaml:"prompt_templates"`
	Runners             string `yaml:"runners"`
	Databases           string `yaml:"databases"`
	Results             string `yaml:"results"`
	ResultsModules      string `yaml:"results_modules"`
	AttackModules       string `yaml:"attack_modules"`
	ContextStrategy     string `yaml:"context_strategy"`
	IOModules           string `yaml:"io_modules"`
	Sessions            string `yaml:"sessions"`
}

// CacheConfig tunes prompt-cache behavior.
type CacheConfig struct {
	// RetryFailedRows controls whether a cache row recorded for a
	// terminal connector error is treated as a miss on a later run.
	// Default false: the recorded failure is replayed, not re-sent.
	RetryFailedRows bool `yaml:"retry_failed_rows"`
}

// ConnectorConfig carries process-wide connector defaults; endpoints
// override them per-call through their params map.
type ConnectorConfig struct {
	RetriesTimes int           `yaml:"retries_times"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	Timeout      time.Duration `yaml:"timeout"`
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("30s").
func (c *ConnectorConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RetriesTimes int    `yaml:"retries_times"`
		BackoffBase  string `yaml:"backoff_base"`
		Timeout      string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.RetriesTimes = raw.RetriesTimes
	if raw.BackoffBase != "" {
		d, err := time.ParseDuration(raw.BackoffBase)
		if err != nil {
			return err
		}
		c.BackoffBase = d
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	return nil
}

// Config is the root immutable configuration snapshot.
type Config struct {
	Dirs      Dirs            `yaml:"dirs"`
	Cache     CacheConfig     `yaml:"cache"`
	Connector ConnectorConfig `yaml:"connector"`
}

// Environment variable names resolving each directory. All are
// overridable at startup.
const (
	EnvConnectors          = "CONNECTORS"
	EnvConnectorsEndpoints = "CONNECTORS_ENDPOINTS"
	EnvRecipes             = "RECIPES"
	EnvCookbooks           = "COOKBOOKS"
	EnvDatasets            = "DATASETS"
	EnvMetrics             = "METRICS"
	EnvPromptTemplates     = "PROMPT_TEMPLATES"
	EnvRunners             = "RUNNERS"
	EnvDatabases           = "DATABASES"
	EnvResults             = "RESULTS"
	EnvResultsModules      = "RESULTS_MODULES"
	EnvAttackModules       = "ATTACK_MODULES"
	EnvContextStrategy     = "CONTEXT_STRATEGY"
	EnvIOModules           = "IO_MODULES"
	EnvSessions            = "SESSIONS"
)

// Default connector governance values.
const (
	DefaultRetriesTimes = 3
	DefaultBackoffBase  = time.Second
	DefaultTimeout      = 300 * time.Second
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// FromEnv builds a Config from the process environment, rooting default
// directories under baseDir.
func FromEnv(baseDir string) Config {
	d := func(sub string) string { return filepath.Join(baseDir, sub) }
	return Config{
		Dirs: Dirs{
			Connectors:          envOr(EnvConnectors, d("connectors")),
			ConnectorsEndpoints: envOr(EnvConnectorsEndpoints, d("connectors-endpoints")),
			Recipes:             envOr(EnvRecipes, d("recipes")),
			Cookbooks:           envOr(EnvCookbooks, d("cookbooks")),
			Datasets:            envOr(EnvDatasets, d("datasets")),
			Metrics:             envOr(EnvMetrics, d("metrics")),
			PromptTemplates:     envOr(EnvPromptTemplates, d("prompt-templates")),
			Runners:             envOr(EnvRunners, d("runners")),
			Databases:           envOr(EnvDatabases, d("databases")),
			Results:             envOr(EnvResults, d("results")),
			ResultsModules:      envOr(EnvResultsModules, d("results-modules")),
			AttackModules:       envOr(EnvAttackModules, d("attack-modules")),
			ContextStrategy:     envOr(EnvContextStrategy, d("context-strategy")),
			IOModules:           envOr(EnvIOModules, d("io-modules")),
			Sessions:            envOr(EnvSessions, d("sessions")),
		},
		Connector: ConnectorConfig{
			RetriesTimes: DefaultRetriesTimes,
			BackoffBase:  DefaultBackoffBase,
			Timeout:      DefaultTimeout,
		},
	}
}

// LoadFile overlays YAML settings from path onto base. Zero values in
// the file leave base untouched for the connector defaults; directory
// values replace wholesale when non-empty.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, types.WrapError(types.ARTIFACT_IO_ERROR, "reading config file", err)
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, types.WrapError(types.MANIFEST_PARSE_FAIL, "parsing config file", err)
	}
	merged := base
	mergeDirs(&merged.Dirs, overlay.Dirs)
	merged.Cache.RetryFailedRows = merged.Cache.RetryFailedRows || overlay.Cache.RetryFailedRows
	if overlay.Connector.RetriesTimes > 0 {
		merged.Connector.RetriesTimes = overlay.Connector.RetriesTimes
	}
	if overlay.Connector.BackoffBase > 0 {
		merged.Connector.BackoffBase = overlay.Connector.BackoffBase
	}
	if overlay.Connector.Timeout > 0 {
		merged.Connector.Timeout = overlay.Connector.Timeout
	}
	return merged, nil
}

func mergeDirs(dst *Dirs, src Dirs) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&dst.Connectors, src.Connectors)
	set(&dst.ConnectorsEndpoints, src.ConnectorsEndpoints)
	set(&dst.Recipes, src.Recipes)
	set(&dst.Cookbooks, src.Cookbooks)
	set(&dst.Datasets, src.Datasets)
	set(&dst.Metrics, src.Metrics)
	set(&dst.PromptTemplates, src.PromptTemplates)
	set(&dst.Runners, src.Runners)
	set(&dst.Databases, src.Databases)
	set(&dst.Results, src.Results)
	set(&dst.ResultsModules, src.ResultsModules)
	set(&dst.AttackModules, src.AttackModules)
	set(&dst.ContextStrategy, src.ContextStrategy)
	set(&dst.IOModules, src.IOModules)
	set(&dst.Sessions, src.Sessions)
}

// EnsureDirs creates every configured directory that does not exist.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{
		c.Dirs.Connectors, c.Dirs.ConnectorsEndpoints, c.Dirs.Recipes,
		c.Dirs.Cookbooks, c.Dirs.Datasets, c.Dirs.Metrics,
		c.Dirs.PromptTemplates, c.Dirs.Runners, c.Dirs.Databases,
		c.Dirs.Results, c.Dirs.ResultsModules, c.Dirs.AttackModules,
		c.Dirs.ContextStrategy, c.Dirs.IOModules, c.Dirs.Sessions,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.WrapError(types.ARTIFACT_IO_ERROR, "creating directory "+dir, err)
		}
	}
	return nil
}
