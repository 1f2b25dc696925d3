package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/straylight-ai/crucible/types"
)

// SQLite is the default embedded Store. The connection is opened in WAL
// mode with a busy timeout; MaxOpenConns is pinned to 1 because the
// owning Runner serializes all access through a single handle.
type SQLite struct {
	conn *sql.DB
	path string
}

const sqliteBusyTimeout = 5 * time.Second

const schemaRunnerMetadata = `
CREATE TABLE IF NOT EXISTS runner_metadata (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	endpoints TEXT NOT NULL,
	database_file TEXT NOT NULL,
	description TEXT
)`

const schemaRunMetadata = `
CREATE TABLE IF NOT EXISTS run_metadata (
	run_id INTEGER PRIMARY KEY AUTOINCREMENT,
	runner_id TEXT NOT NULL,
	runner_type TEXT NOT NULL,
	runner_args TEXT NOT NULL,
	endpoints TEXT NOT NULL,
	results_file TEXT,
	start_time TIMESTAMP,
	end_time TIMESTAMP,
	duration REAL,
	error_messages TEXT,
	raw_results TEXT,
	results TEXT,
	status TEXT NOT NULL
)`

const schemaCacheTable = `
CREATE TABLE IF NOT EXISTS cache_table (
	recipe_id TEXT NOT NULL,
	connector_id TEXT NOT NULL,
	prompt_template_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	dataset_id TEXT NOT NULL,
	prompt_index INTEGER NOT NULL,
	target TEXT NOT NULL,
	predicted_results TEXT,
	duration REAL,
	error_message TEXT,
	UNIQUE (recipe_id, connector_id, prompt_template_id, prompt)
)`

const schemaSessionMetadata = `
CREATE TABLE IF NOT EXISTS session_metadata (
	session_id TEXT PRIMARY KEY,
	endpoints TEXT NOT NULL,
	created_epoch INTEGER NOT NULL,
	created_datetime TEXT NOT NULL,
	prompt_template TEXT,
	context_strategy TEXT,
	cs_num_of_prev_prompts INTEGER,
	attack_module TEXT,
	metric TEXT,
	system_prompt TEXT,
	chat_ids TEXT
)`

const schemaChatMetadata = `
CREATE TABLE IF NOT EXISTS chat_metadata (
	chat_id TEXT PRIMARY KEY,
	endpoint TEXT NOT NULL,
	created_epoch INTEGER NOT NULL
)`

const schemaChatTable = `
CREATE TABLE IF NOT EXISTS %s (
	chat_record_id TEXT PRIMARY KEY,
	conn_id TEXT NOT NULL,
	context_strategy TEXT,
	prompt_template TEXT,
	prompt TEXT NOT NULL,
	prepared_prompt TEXT NOT NULL,
	predicted_result TEXT,
	duration REAL,
	prompt_time TIMESTAMP NOT NULL
)`

// OpenSQLite opens (creating if absent) the runner database at path and
// ensures the fixed tables exist.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d",
		path, int(sqliteBusyTimeout.Milliseconds()))
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.DB_OPEN_FAILED, "opening run database", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "pinging run database", err)
	}

	db := &SQLite{conn: conn, path: path}
	for _, schema := range []string{
		schemaRunnerMetadata, schemaRunMetadata, schemaCacheTable,
		schemaSessionMetadata, schemaChatMetadata,
	} {
		if _, err := conn.ExecContext(ctx, schema); err != nil {
			conn.Close()
			return nil, types.WrapError(types.DB_OPEN_FAILED, "creating schema", err)
		}
	}
	return db, nil
}

// Close releases the database handle.
func (db *SQLite) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Path returns the database file path.
func (db *SQLite) Path() string {
	return db.path
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// SaveRunnerMetadata writes the single runner_metadata row.
func (db *SQLite) SaveRunnerMetadata(ctx context.Context, m types.RunnerMetadata) error {
	query := `
		INSERT INTO runner_metadata (id, name, endpoints, database_file, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			endpoints = excluded.endpoints,
			database_file = excluded.database_file,
			description = excluded.description
	`
	_, err := db.conn.ExecContext(ctx, query,
		m.ID, m.Name, marshalJSON(m.Endpoints), m.DatabaseFile, m.Description)
	if err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "saving runner metadata", err)
	}
	return nil
}

// ReadRunnerMetadata reads the single runner_metadata row.
func (db *SQLite) ReadRunnerMetadata(ctx context.Context) (types.RunnerMetadata, error) {
	var m types.RunnerMetadata
	var endpoints string
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, endpoints, database_file, description FROM runner_metadata LIMIT 1`)
	if err := row.Scan(&m.ID, &m.Name, &endpoints, &m.DatabaseFile, &m.Description); err != nil {
		if err == sql.ErrNoRows {
			return m, &types.NotFoundError{Kind: "runner_metadata", ID: db.path}
		}
		return m, types.WrapError(types.DB_QUERY_FAILED, "reading runner metadata", err)
	}
	if err := json.Unmarshal([]byte(endpoints), &m.Endpoints); err != nil {
		return m, types.WrapError(types.DB_QUERY_FAILED, "decoding runner endpoints", err)
	}
	return m, nil
}

// CreateRun inserts a run row and returns its autoincremented id.
func (db *SQLite) CreateRun(ctx context.Context, run *types.Run) (int64, error) {
	query := `
		INSERT INTO run_metadata (
			runner_id, runner_type, runner_args, endpoints, results_file,
			start_time, end_time, duration, error_messages, raw_results, results, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		run.RunnerID, string(run.RunnerType), run.RunnerArgs,
		marshalJSON(run.Endpoints), run.ResultsFile,
		run.StartTime, run.EndTime, run.Duration,
		marshalJSON(run.ErrorMessages), run.RawResults, run.Results,
		string(run.Status))
	if err != nil {
		return 0, types.WrapError(types.DB_WRITE_FAILED, "creating run row", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, types.WrapError(types.DB_WRITE_FAILED, "reading run id", err)
	}
	run.RunID = id
	return id, nil
}

// UpdateRun flushes the run row.
func (db *SQLite) UpdateRun(ctx context.Context, run *types.Run) error {
	query := `
		UPDATE run_metadata SET
			results_file = ?, start_time = ?, end_time = ?, duration = ?,
			error_messages = ?, raw_results = ?, results = ?, status = ?
		WHERE run_id = ?
	`
	_, err := db.conn.ExecContext(ctx, query,
		run.ResultsFile, run.StartTime, run.EndTime, run.Duration,
		marshalJSON(run.ErrorMessages), run.RawResults, run.Results,
		string(run.Status), run.RunID)
	if err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "updating run row", err)
	}
	return nil
}

func scanRun(scan func(dest ...any) error) (types.Run, error) {
	var run types.Run
	var runnerType, status string
	var endpoints, errorMessages string
	var resultsFile, rawResults, results sql.NullString
	err := scan(&run.RunID, &run.RunnerID, &runnerType, &run.RunnerArgs,
		&endpoints, &resultsFile, &run.StartTime, &run.EndTime,
		&run.Duration, &errorMessages, &rawResults, &results, &status)
	if err != nil {
		return run, err
	}
	run.RunnerType = types.RunnerType(runnerType)
	run.Status = types.RunStatus(status)
	run.ResultsFile = resultsFile.String
	run.RawResults = rawResults.String
	run.Results = results.String
	if err := json.Unmarshal([]byte(endpoints), &run.Endpoints); err != nil {
		return run, err
	}
	if err := json.Unmarshal([]byte(errorMessages), &run.ErrorMessages); err != nil {
		return run, err
	}
	return run, nil
}

const selectRunColumns = `
	SELECT run_id, runner_id, runner_type, runner_args, endpoints,
	       results_file, start_time, end_time, duration, error_messages,
	       raw_results, results, status
	FROM run_metadata`

// ReadRun loads one run row.
func (db *SQLite) ReadRun(ctx context.Context, runID int64) (types.Run, error) {
	row := db.conn.QueryRowContext(ctx, selectRunColumns+` WHERE run_id = ?`, runID)
	run, err := scanRun(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return run, &types.NotFoundError{Kind: "run", ID: fmt.Sprintf("%d", runID)}
		}
		return run, types.WrapError(types.DB_QUERY_FAILED, "reading run row", err)
	}
	return run, nil
}

// ListRuns returns all run rows, oldest first.
func (db *SQLite) ListRuns(ctx context.Context) ([]types.Run, error) {
	rows, err := db.conn.QueryContext(ctx, selectRunColumns+` ORDER BY run_id ASC`)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "listing runs", err)
	}
	defer rows.Close()
	var runs []types.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "scanning run row", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Read implements PromptCache over cache_table.
func (db *SQLite) Read(ctx context.Context, key CacheKey, target string) (CacheLookup, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT dataset_id, prompt_index, target, predicted_results, duration, error_message
		FROM cache_table
		WHERE recipe_id = ? AND connector_id = ? AND prompt_template_id = ? AND prompt = ?`,
		key.RecipeID, key.ConnectorID, key.PromptTemplateID, key.Prompt)

	var r CacheRow
	r.CacheKey = key
	var predicted, errMsg sql.NullString
	var durationSec float64
	err := row.Scan(&r.DatasetID, &r.PromptIndex, &r.Target, &predicted, &durationSec, &errMsg)
	if err == sql.ErrNoRows {
		return CacheLookup{State: LookupMiss}, nil
	}
	if err != nil {
		return CacheLookup{}, types.WrapError(types.DB_QUERY_FAILED, "reading cache row", err)
	}
	r.Predicted = predicted.String
	r.ErrorMessage = errMsg.String
	r.Duration = time.Duration(durationSec * float64(time.Second))

	if r.ErrorMessage != "" {
		return CacheLookup{State: LookupFailed, Row: r}, nil
	}
	if r.Target != target {
		// dataset edits changed the target since this row was written
		return CacheLookup{State: LookupStale, Row: r}, nil
	}
	return CacheLookup{State: LookupHit, Row: r}, nil
}

// Write implements PromptCache over cache_table. The upsert is a single
// statement so a cancelled run never leaves a half-written row.
func (db *SQLite) Write(ctx context.Context, row CacheRow) error {
	query := `
		INSERT INTO cache_table (
			recipe_id, connector_id, prompt_template_id, prompt,
			dataset_id, prompt_index, target, predicted_results, duration, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(recipe_id, connector_id, prompt_template_id, prompt) DO UPDATE SET
			dataset_id = excluded.dataset_id,
			prompt_index = excluded.prompt_index,
			target = excluded.target,
			predicted_results = excluded.predicted_results,
			duration = excluded.duration,
			error_message = excluded.error_message
	`
	_, err := db.conn.ExecContext(ctx, query,
		row.RecipeID, row.ConnectorID, row.PromptTemplateID, row.Prompt,
		row.DatasetID, row.PromptIndex, row.Target, row.Predicted,
		row.Duration.Seconds(), row.ErrorMessage)
	if err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "writing cache row", err)
	}
	return nil
}

// SaveSession upserts the single session_metadata row.
func (db *SQLite) SaveSession(ctx context.Context, s types.Session) error {
	query := `
		INSERT INTO session_metadata (
			session_id, endpoints, created_epoch, created_datetime,
			prompt_template, context_strategy, cs_num_of_prev_prompts,
			attack_module, metric, system_prompt, chat_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			endpoints = excluded.endpoints,
			prompt_template = excluded.prompt_template,
			context_strategy = excluded.context_strategy,
			cs_num_of_prev_prompts = excluded.cs_num_of_prev_prompts,
			attack_module = excluded.attack_module,
			metric = excluded.metric,
			system_prompt = excluded.system_prompt,
			chat_ids = excluded.chat_ids
	`
	_, err := db.conn.ExecContext(ctx, query,
		s.SessionID, marshalJSON(s.Endpoints), s.CreatedEpoch, s.CreatedDatetime,
		s.PromptTemplate, s.ContextStrategy, s.CSNumOfPrevPrompts,
		s.AttackModule, s.Metric, s.SystemPrompt, marshalJSON(s.ChatIDs))
	if err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "saving session", err)
	}
	return nil
}

// ReadSession returns the session, or nil when none exists yet.
func (db *SQLite) ReadSession(ctx context.Context) (*types.Session, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT session_id, endpoints, created_epoch, created_datetime,
		       prompt_template, context_strategy, cs_num_of_prev_prompts,
		       attack_module, metric, system_prompt, chat_ids
		FROM session_metadata LIMIT 1`)

	var s types.Session
	var endpoints, chatIDs string
	var pt, cs, am, metric, sys sql.NullString
	err := row.Scan(&s.SessionID, &endpoints, &s.CreatedEpoch, &s.CreatedDatetime,
		&pt, &cs, &s.CSNumOfPrevPrompts, &am, &metric, &sys, &chatIDs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "reading session", err)
	}
	s.PromptTemplate = pt.String
	s.ContextStrategy = cs.String
	s.AttackModule = am.String
	s.Metric = metric.String
	s.SystemPrompt = sys.String
	if err := json.Unmarshal([]byte(endpoints), &s.Endpoints); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "decoding session endpoints", err)
	}
	if err := json.Unmarshal([]byte(chatIDs), &s.ChatIDs); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "decoding session chat ids", err)
	}
	return &s, nil
}

// DeleteSession removes the session row and drops its chat tables.
func (db *SQLite) DeleteSession(ctx context.Context) error {
	s, err := db.ReadSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	for _, table := range s.ChatIDs {
		if !validChatTable(table) {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return types.WrapError(types.DB_WRITE_FAILED, "dropping chat table "+table, err)
		}
		if _, err := db.conn.ExecContext(ctx, `DELETE FROM chat_metadata WHERE chat_id = ?`, table); err != nil {
			return types.WrapError(types.DB_WRITE_FAILED, "removing chat metadata", err)
		}
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM session_metadata`); err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "deleting session", err)
	}
	return nil
}

// chatTableName builds chat_<slug>_<timestamp> with hyphens folded to
// underscores for SQL identifier safety.
func chatTableName(endpointID string, now time.Time) string {
	slug := strings.ReplaceAll(endpointID, "-", "_")
	return fmt.Sprintf("chat_%s_%d", slug, now.Unix())
}

// validChatTable guards dynamic identifiers before interpolation.
func validChatTable(name string) bool {
	if !strings.HasPrefix(name, "chat_") {
		return false
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			return false
		}
	}
	return true
}

// CreateChatTable creates a per-endpoint history table and records it
// in chat_metadata.
func (db *SQLite) CreateChatTable(ctx context.Context, endpointID string) (string, error) {
	table := chatTableName(endpointID, time.Now())
	if !validChatTable(table) {
		return "", &types.ValidationError{Field: "endpoint", Message: "cannot derive chat table name from " + endpointID}
	}
	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(schemaChatTable, table)); err != nil {
		return "", types.WrapError(types.DB_WRITE_FAILED, "creating chat table", err)
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO chat_metadata (chat_id, endpoint, created_epoch) VALUES (?, ?, ?)`,
		table, endpointID, time.Now().Unix())
	if err != nil {
		return "", types.WrapError(types.DB_WRITE_FAILED, "recording chat metadata", err)
	}
	return table, nil
}

// AppendChatRecord appends one record to a chat table.
func (db *SQLite) AppendChatRecord(ctx context.Context, table string, rec types.ChatRecord) error {
	if !validChatTable(table) {
		return &types.ValidationError{Field: "table", Message: "invalid chat table name " + table}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			chat_record_id, conn_id, context_strategy, prompt_template,
			prompt, prepared_prompt, predicted_result, duration, prompt_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)
	_, err := db.conn.ExecContext(ctx, query,
		rec.ChatRecordID, rec.ConnectionID, rec.ContextStrategy, rec.PromptTemplate,
		rec.Prompt, rec.PreparedPrompt, rec.Predicted, rec.Duration.Seconds(), rec.PromptTime)
	if err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "appending chat record", err)
	}
	return nil
}

// ReadChatRecords returns records in dispatch order; when limit > 0
// only the newest limit records are returned (still oldest-first).
func (db *SQLite) ReadChatRecords(ctx context.Context, table string, limit int) ([]types.ChatRecord, error) {
	if !validChatTable(table) {
		return nil, &types.ValidationError{Field: "table", Message: "invalid chat table name " + table}
	}
	query := fmt.Sprintf(`
		SELECT chat_record_id, conn_id, context_strategy, prompt_template,
		       prompt, prepared_prompt, predicted_result, duration, prompt_time
		FROM %s ORDER BY rowid ASC`, table)
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "reading chat records", err)
	}
	defer rows.Close()

	var recs []types.ChatRecord
	for rows.Next() {
		var r types.ChatRecord
		var cs, pt, predicted sql.NullString
		var durationSec float64
		if err := rows.Scan(&r.ChatRecordID, &r.ConnectionID, &cs, &pt,
			&r.Prompt, &r.PreparedPrompt, &predicted, &durationSec, &r.PromptTime); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "scanning chat record", err)
		}
		r.ContextStrategy = cs.String
		r.PromptTemplate = pt.String
		r.Predicted = predicted.String
		r.Duration = time.Duration(durationSec * float64(time.Second))
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "iterating chat records", err)
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}
