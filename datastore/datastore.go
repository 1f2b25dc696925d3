// Package datastore implements the per-runner run database: runner and
// run metadata, the prompt cache, session metadata and per-endpoint
// chat history tables. The default implementation is an embedded SQLite
// database owned exclusively by its Runner; a Redis variant covers the
// prompt-cache capability for deployments sharing a cache across hosts.
package datastore

import (
	"context"
	"time"

	"github.com/straylight-ai/crucible/types"
)

// CacheKey uniquely identifies a completed prediction. The rendered
// prompt text is part of the key so template or dataset edits
// invalidate prior rows.
type CacheKey struct {
	RecipeID         string
	ConnectorID      string
	PromptTemplateID string
	Prompt           string
}

// CacheRow is one persisted prediction (or terminal failure marker).
type CacheRow struct {
	CacheKey
	DatasetID    string
	PromptIndex  int
	Target       string // JSON-encoded target value
	Predicted    string
	Duration     time.Duration
	ErrorMessage string // non-empty marks a terminal connector failure
}

// LookupState is the outcome of a cache read. Cache misses are values,
// not errors.
type LookupState int

const (
	// LookupMiss: no row for the key.
	LookupMiss LookupState = iota
	// LookupHit: a successful prediction with matching target.
	LookupHit
	// LookupStale: a row exists but its target no longer matches the
	// dataset; treated as a miss and overwritten.
	LookupStale
	// LookupFailed: a terminal-failure marker row.
	LookupFailed
)

// CacheLookup is the sum type returned by PromptCache.Read.
type CacheLookup struct {
	State LookupState
	Row   CacheRow
}

// PromptCache is the capability subset needed by the benchmark
// pipeline. Writers to the same key are idempotent; last writer wins
// and must write identical key tuples.
type PromptCache interface {
	// Read looks up the key and verifies the stored target against
	// target; a mismatch reports LookupStale.
	Read(ctx context.Context, key CacheKey, target string) (CacheLookup, error)

	// Write upserts the row atomically.
	Write(ctx context.Context, row CacheRow) error
}

// Store is the full run-database capability set: connection lifecycle,
// table creation, and row create/read/update over the runner's tables.
// All writes are atomic per row; a crashed run leaves the database in a
// state where resumption can see which prompts completed.
type Store interface {
	PromptCache

	// Close releases the database handle.
	Close() error

	// SaveRunnerMetadata writes the single runner_metadata row.
	SaveRunnerMetadata(ctx context.Context, m types.RunnerMetadata) error

	// ReadRunnerMetadata reads the single runner_metadata row.
	ReadRunnerMetadata(ctx context.Context) (types.RunnerMetadata, error)

	// CreateRun inserts a run row and returns its autoincremented id.
	CreateRun(ctx context.Context, run *types.Run) (int64, error)

	// UpdateRun flushes the run row; called before any progress
	// callback fires so restart sees the last known status.
	UpdateRun(ctx context.Context, run *types.Run) error

	// ReadRun loads one run row.
	ReadRun(ctx context.Context, runID int64) (types.Run, error)

	// ListRuns returns all run rows, oldest first.
	ListRuns(ctx context.Context) ([]types.Run, error)

	// SaveSession upserts the single session_metadata row.
	SaveSession(ctx context.Context, s types.Session) error

	// ReadSession returns the session, or nil when none exists yet.
	ReadSession(ctx context.Context) (*types.Session, error)

	// DeleteSession removes the session row and its chat tables.
	DeleteSession(ctx context.Context) error

	// CreateChatTable creates the per-endpoint history table
	// chat_<slug>_<timestamp> and records it in chat_metadata.
	CreateChatTable(ctx context.Context, endpointID string) (string, error)

	// AppendChatRecord appends one record to a chat table.
	AppendChatRecord(ctx context.Context, table string, rec types.ChatRecord) error

	// ReadChatRecords returns the newest limit records in dispatch
	// order (all records when limit <= 0).
	ReadChatRecords(ctx context.Context, table string, limit int) ([]types.ChatRecord, error)
}
