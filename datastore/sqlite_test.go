package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straylight-ai/crucible/types"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunnerMetadataRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	meta := types.RunnerMetadata{
		ID:           "my-runner",
		Name:         "my runner",
		Endpoints:    []string{"ep-one", "ep-two"},
		DatabaseFile: db.Path(),
		Description:  "test runner",
	}
	require.NoError(t, db.SaveRunnerMetadata(ctx, meta))

	got, err := db.ReadRunnerMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	// save is an upsert
	meta.Description = "renamed"
	require.NoError(t, db.SaveRunnerMetadata(ctx, meta))
	got, err = db.ReadRunnerMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Description)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := &types.Run{
		RunnerID:      "my-runner",
		RunnerType:    types.RunnerTypeBenchmark,
		RunnerArgs:    `{"recipes":["arc"]}`,
		Endpoints:     []string{"ep-one"},
		StartTime:     time.Now().UTC(),
		ErrorMessages: []string{},
		Status:        types.RunStatusPending,
	}
	id, err := db.CreateRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	run.Status = types.RunStatusRunning
	require.NoError(t, db.UpdateRun(ctx, run))

	run.Status = types.RunStatusCompleted
	run.EndTime = time.Now().UTC()
	run.Duration = 1.5
	run.ResultsFile = "my-runner-run1.json"
	require.NoError(t, db.UpdateRun(ctx, run))

	got, err := db.ReadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusCompleted, got.Status)
	assert.Equal(t, "my-runner-run1.json", got.ResultsFile)
	assert.Equal(t, 1.5, got.Duration)

	// run_id autoincrements per runner database
	second := &types.Run{
		RunnerID: "my-runner", RunnerType: types.RunnerTypeBenchmark,
		RunnerArgs: "{}", Endpoints: []string{"ep-one"},
		ErrorMessages: []string{}, Status: types.RunStatusPending,
	}
	id2, err := db.CreateRun(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)

	runs, err := db.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(1), runs[0].RunID)
}

func TestReadRunMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ReadRun(context.Background(), 99)
	assert.True(t, types.IsNotFound(err))
}

func TestCacheProtocol(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	key := CacheKey{
		RecipeID:         "arc",
		ConnectorID:      "ep-one",
		PromptTemplateID: "mcq-template",
		Prompt:           "2+2=?",
	}

	lookup, err := db.Read(ctx, key, `"4"`)
	require.NoError(t, err)
	assert.Equal(t, LookupMiss, lookup.State)

	row := CacheRow{
		CacheKey:    key,
		DatasetID:   "arc-easy",
		PromptIndex: 0,
		Target:      `"4"`,
		Predicted:   "4",
		Duration:    120 * time.Millisecond,
	}
	require.NoError(t, db.Write(ctx, row))

	lookup, err = db.Read(ctx, key, `"4"`)
	require.NoError(t, err)
	assert.Equal(t, LookupHit, lookup.State)
	assert.Equal(t, "4", lookup.Row.Predicted)
	assert.Equal(t, 120*time.Millisecond, lookup.Row.Duration)

	// dataset edit changes the target: row is stale
	lookup, err = db.Read(ctx, key, `"5"`)
	require.NoError(t, err)
	assert.Equal(t, LookupStale, lookup.State)

	// idempotent re-write with identical key tuple
	require.NoError(t, db.Write(ctx, row))
	lookup, err = db.Read(ctx, key, `"4"`)
	require.NoError(t, err)
	assert.Equal(t, LookupHit, lookup.State)
}

func TestCacheFailureMarker(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	key := CacheKey{RecipeID: "arc", ConnectorID: "ep-one", PromptTemplateID: "no-template", Prompt: "boom"}
	require.NoError(t, db.Write(ctx, CacheRow{
		CacheKey:     key,
		DatasetID:    "arc-easy",
		Target:       `"4"`,
		ErrorMessage: "[CONNECTOR_TERMINAL] upstream 500",
	}))

	lookup, err := db.Read(ctx, key, `"4"`)
	require.NoError(t, err)
	assert.Equal(t, LookupFailed, lookup.State)
	assert.Contains(t, lookup.Row.ErrorMessage, "CONNECTOR_TERMINAL")
}

func TestSessionAndChats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// no session yet
	s, err := db.ReadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	table, err := db.CreateChatTable(ctx, "ep-one")
	require.NoError(t, err)
	assert.Contains(t, table, "chat_ep_one_")

	session := types.Session{
		SessionID:          "rt-runner",
		Endpoints:          []string{"ep-one"},
		CreatedEpoch:       time.Now().Unix(),
		CreatedDatetime:    time.Now().Format("20060102-150405"),
		CSNumOfPrevPrompts: types.DefaultNumOfPrevPrompts,
		ChatIDs:            map[string]string{"ep-one": table},
	}
	require.NoError(t, db.SaveSession(ctx, session))

	s, err = db.ReadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "rt-runner", s.SessionID)
	assert.Equal(t, table, s.ChatIDs["ep-one"])

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rec := types.ChatRecord{
			ChatRecordID:   uuid.New().String(),
			ConnectionID:   "ep-one",
			Prompt:         "hello",
			PreparedPrompt: "hello",
			Predicted:      "hi",
			Duration:       50 * time.Millisecond,
			PromptTime:     base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.AppendChatRecord(ctx, table, rec))
	}

	recs, err := db.ReadChatRecords(ctx, table, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].PromptTime.Before(recs[i-1].PromptTime),
			"prompt_time must be monotone nondecreasing")
	}

	limited, err := db.ReadChatRecords(ctx, table, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, recs[1].ChatRecordID, limited[0].ChatRecordID, "limit keeps the newest records")

	require.NoError(t, db.DeleteSession(ctx))
	s, err = db.ReadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	_, err = db.ReadChatRecords(ctx, table, 0)
	assert.Error(t, err, "chat table dropped with the session")
}

func TestChatTableNameGuard(t *testing.T) {
	assert.True(t, validChatTable("chat_ep_one_1700000000"))
	assert.False(t, validChatTable("runs; DROP TABLE run_metadata"))
	assert.False(t, validChatTable("chat_EP"))
}
