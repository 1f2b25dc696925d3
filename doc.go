// Package crucible is an evaluation framework for large language
// models. It orchestrates benchmark runs (recipes and cookbooks scored
// by pluggable metrics and graded through per-recipe scales) and
// red-teaming sessions (manual probing and automated attack modules
// over durable per-endpoint chat histories) against any set of
// configured model endpoints.
//
// The Framework facade wires the subsystems together: the on-disk
// artifact store, per-runner SQLite run databases with a prompt cache,
// governed connectors built on langchaingo adapters, the benchmark
// pipeline and the red-team engine. Construct one with New:
//
//	cfg := config.FromEnv("")
//	framework, err := crucible.New(cfg, crucible.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
package crucible
