package db

import (
	"errors"
	"time"

	"github.com/Kocoro-lab/repo-research/internal/research"
)

var (
	ErrWorkflowNotFound  = errors.New("research workflow not found")
	ErrInvalidTransition = errors.New("invalid research workflow status transition")
)

// ResearchWorkflow is one durable research job
type ResearchWorkflow struct {
	ID             string          `db:"id" json:"id"`
	SessionID      string          `db:"session_id" json:"session_id"`
	Repository     string          `db:"repository" json:"repository"`
	Question       string          `db:"question" json:"question"`
	Depth          research.Depth  `db:"depth" json:"depth"`
	ExternalTaskID *string         `db:"external_task_id" json:"external_task_id,omitempty"`
	Status         research.Status `db:"status" json:"status"`

	// Exactly one of Results/Error is set once Status is terminal
	Results *string `db:"results" json:"results,omitempty"`
	Error   *string `db:"error" json:"error,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// HasExternalTask reports whether a tracker reference was supplied
func (w *ResearchWorkflow) HasExternalTask() bool {
	return w.ExternalTaskID != nil && *w.ExternalTaskID != ""
}

// NewWorkflow carries the immutable inputs of a research job
type NewWorkflow struct {
	SessionID      string
	Repository     string
	Question       string
	Depth          research.Depth
	ExternalTaskID string
}

// ListOptions filters ListResearchWorkflows
type ListOptions struct {
	Limit     int
	SessionID string
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}
