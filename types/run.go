package types

import "time"

// RunnerType selects which processing module a runner drives by default.
type RunnerType string

const (
	RunnerTypeBenchmark RunnerType = "BENCHMARK"
	RunnerTypeRedTeam   RunnerType = "REDTEAM"
)

// RunStatus is the lifecycle state of a run. A run is born PENDING and
// transitions monotonically to a terminal state; every transition is
// flushed to the run_metadata row before observers are notified.
type RunStatus string

const (
	RunStatusPending             RunStatus = "PENDING"
	RunStatusRunning             RunStatus = "RUNNING"
	RunStatusRunningWithErrors   RunStatus = "RUNNING_WITH_ERRORS"
	RunStatusCompleted           RunStatus = "COMPLETED"
	RunStatusCompletedWithErrors RunStatus = "COMPLETED_WITH_ERRORS"
	RunStatusCancelled           RunStatus = "CANCELLED"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCompletedWithErrors, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s RunStatus) String() string {
	return string(s)
}

// Run is one execution attempt of a runner's configured work. RunID
// autoincrements per runner database.
type Run struct {
	RunID         int64      `json:"run_id"`
	RunnerID      string     `json:"runner_id"`
	RunnerType    RunnerType `json:"runner_type"`
	RunnerArgs    string     `json:"runner_args"` // serialized RunnerArgs map
	Endpoints     []string   `json:"endpoints"`
	ResultsFile   string     `json:"results_file"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Duration      float64    `json:"duration"` // seconds
	ErrorMessages []string   `json:"error_messages"`
	RawResults    string     `json:"raw_results,omitempty"`
	Results       string     `json:"results,omitempty"`
	Status        RunStatus  `json:"status"`
}

// RunnerMetadata is the durable identity of a runner: it owns exactly
// one database file holding run metadata and the prompt cache.
type RunnerMetadata struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Endpoints    []string `json:"endpoints"`
	DatabaseFile string   `json:"database_file"`
	Description  string   `json:"description"`
}

// Validate checks runner metadata.
func (m *RunnerMetadata) Validate() error {
	if m.Name == "" {
		return &ValidationError{Field: "name", Message: "runner name is required"}
	}
	if len(m.Endpoints) == 0 {
		return &ValidationError{Field: "endpoints", Message: "at least one endpoint is required"}
	}
	return nil
}
