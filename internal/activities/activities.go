package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/delivery"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
	"github.com/Kocoro-lab/repo-research/internal/research"
)

// Store is the workflow record access the activities need
type Store interface {
	GetResearchWorkflow(ctx context.Context, id string) (*db.ResearchWorkflow, error)
	MarkInProgress(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, results string) error
	MarkFailed(ctx context.Context, id, message string) error
}

// Explorer investigates one sub-question
type Explorer interface {
	Explore(ctx context.Context, repository, subQuestion string) research.Exploration
}

// Deliverer reports terminal outcomes
type Deliverer interface {
	AppendResult(ctx context.Context, r delivery.Report) error
	AppendFailure(ctx context.Context, r delivery.Report) error
	PostToTracker(ctx context.Context, r delivery.Report, cfg delivery.TrackerConfig) delivery.Outcome
}

// Activities struct holds dependencies for activities
type Activities struct {
	store    Store
	gate     delivery.Waiter
	explorer Explorer
	sink     Deliverer
	tracker  func() delivery.TrackerConfig
	logger   *zap.Logger
}

// NewActivities creates a new activities instance with dependencies.
// tracker is read on every delivery so configuration reloads take effect.
func NewActivities(store Store, gate delivery.Waiter, explorer Explorer, sink Deliverer, tracker func() delivery.TrackerConfig, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = delivery.DefaultTrackerConfig
	}
	return &Activities{
		store:    store,
		gate:     gate,
		explorer: explorer,
		sink:     sink,
		tracker:  tracker,
		logger:   logger,
	}
}

var _ delivery.Waiter = (*readiness.Gate)(nil)

func report(wf *db.ResearchWorkflow) delivery.Report {
	r := delivery.Report{
		WorkflowID: wf.ID,
		SessionID:  wf.SessionID,
		Repository: wf.Repository,
		Question:   wf.Question,
	}
	if wf.ExternalTaskID != nil {
		r.ExternalTaskID = *wf.ExternalTaskID
	}
	if wf.Results != nil {
		r.Results = *wf.Results
	}
	if wf.Error != nil {
		r.Error = *wf.Error
	}
	return r
}
