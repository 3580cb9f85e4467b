package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/metrics"
	"github.com/Kocoro-lab/repo-research/internal/research"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid research request")

// Store is the workflow record access the service needs
type Store interface {
	CreateResearchWorkflow(ctx context.Context, in db.NewWorkflow) (*db.ResearchWorkflow, error)
	GetResearchWorkflow(ctx context.Context, id string) (*db.ResearchWorkflow, error)
	ListResearchWorkflows(ctx context.Context, opts db.ListOptions) ([]db.ResearchWorkflow, error)
	MarkFailed(ctx context.Context, id, message string) error
}

// Scheduler fires the deferred run for a created record
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, workflowID string) error
}

// StartRequest asks for a new research workflow
type StartRequest struct {
	SessionID      string `json:"session_id"`
	Repository     string `json:"repository"`
	Question       string `json:"question"`
	Depth          string `json:"depth,omitempty"`
	ExternalTaskID string `json:"external_task_id,omitempty"`
}

// ResearchService is the request-facing side of the research engine
type ResearchService struct {
	store     Store
	scheduler Scheduler
	logger    *zap.Logger
}

// NewResearchService creates the service
func NewResearchService(store Store, scheduler Scheduler, logger *zap.Logger) *ResearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchService{store: store, scheduler: scheduler, logger: logger}
}

var repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Start persists a pending record and schedules its run at zero delay.
// If scheduling fails the record is failed so it never stays pending.
func (s *ResearchService) Start(ctx context.Context, req StartRequest) (*db.ResearchWorkflow, error) {
	in, err := validate(req)
	if err != nil {
		return nil, err
	}

	wf, err := s.store.CreateResearchWorkflow(ctx, in)
	if err != nil {
		return nil, err
	}
	metrics.WorkflowsCreated.WithLabelValues(string(wf.Depth)).Inc()

	if err := s.scheduler.Schedule(ctx, 0, wf.ID); err != nil {
		metrics.ScheduleFailures.Inc()
		s.logger.Error("Failed to schedule research workflow",
			zap.String("workflow_id", wf.ID),
			zap.Error(err),
		)
		message := fmt.Sprintf("failed to schedule research: %v", err)
		if markErr := s.store.MarkFailed(ctx, wf.ID, message); markErr != nil {
			s.logger.Error("Failed to mark unscheduled workflow failed",
				zap.String("workflow_id", wf.ID),
				zap.Error(markErr),
			)
		}
		return nil, fmt.Errorf("schedule research workflow: %w", err)
	}

	s.logger.Info("Research workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("session_id", wf.SessionID),
		zap.String("repository", wf.Repository),
		zap.String("depth", string(wf.Depth)),
		zap.Bool("external_task", wf.HasExternalTask()),
	)
	return wf, nil
}

// Get returns one record
func (s *ResearchService) Get(ctx context.Context, id string) (*db.ResearchWorkflow, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	return s.store.GetResearchWorkflow(ctx, id)
}

// List returns records newest first
func (s *ResearchService) List(ctx context.Context, opts db.ListOptions) ([]db.ResearchWorkflow, error) {
	return s.store.ListResearchWorkflows(ctx, opts)
}

func validate(req StartRequest) (db.NewWorkflow, error) {
	repository := strings.TrimSpace(req.Repository)
	question := strings.TrimSpace(req.Question)
	session := strings.TrimSpace(req.SessionID)

	switch {
	case session == "":
		return db.NewWorkflow{}, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	case !repositoryPattern.MatchString(repository):
		return db.NewWorkflow{}, fmt.Errorf("%w: repository must be in owner/name form, got %q", ErrInvalidRequest, req.Repository)
	case question == "":
		return db.NewWorkflow{}, fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}

	depth, err := research.ParseDepth(req.Depth)
	if err != nil {
		return db.NewWorkflow{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return db.NewWorkflow{
		SessionID:      session,
		Repository:     repository,
		Question:       question,
		Depth:          depth,
		ExternalTaskID: strings.TrimSpace(req.ExternalTaskID),
	}, nil
}
