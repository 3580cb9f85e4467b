package activities

import (
	"time"

	"github.com/Kocoro-lab/repo-research/internal/research"
)

// StartInput identifies the workflow record a run owns
type StartInput struct {
	WorkflowID string `json:"workflow_id"`
}

// StartResult carries the immutable inputs of the record into the workflow.
// Skip is set when the record is already terminal and the run must not re-enter.
type StartResult struct {
	Skip           bool            `json:"skip"`
	Status         research.Status `json:"status"`
	SessionID      string          `json:"session_id"`
	Repository     string          `json:"repository"`
	Question       string          `json:"question"`
	Depth          research.Depth  `json:"depth"`
	ExternalTaskID string          `json:"external_task_id,omitempty"`
}

// AwaitProvidersInput bounds the readiness wait before exploration
type AwaitProvidersInput struct {
	MaxAttempts int           `json:"max_attempts"`
	Interval    time.Duration `json:"interval"`
}

// ExploreInput is one sub-question to investigate
type ExploreInput struct {
	WorkflowID  string `json:"workflow_id"`
	Repository  string `json:"repository"`
	SubQuestion string `json:"sub_question"`
}

// CompleteInput stores a synthesis on the record
type CompleteInput struct {
	WorkflowID string `json:"workflow_id"`
	Results    string `json:"results"`
}

// FailInput stores a workflow-level failure on the record
type FailInput struct {
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"` // error kind, used as a metric label
}

// TranscriptInput asks for the terminal outcome of the record to be appended
// to its conversation
type TranscriptInput struct {
	WorkflowID string `json:"workflow_id"`
}

// TrackerInput asks for the completed results to be posted to the tracker
type TrackerInput struct {
	WorkflowID string `json:"workflow_id"`
}
