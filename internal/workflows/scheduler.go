package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/activities"
	"github.com/Kocoro-lab/repo-research/internal/constants"
)

// ErrAlreadyScheduled is returned when a run already exists for the record.
var ErrAlreadyScheduled = errors.New("research workflow already scheduled")

// Starter is the part of client.Client the scheduler uses.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Scheduler fires exactly one deferred ResearchWorkflow run per record.
type Scheduler struct {
	client    Starter
	taskQueue string
	tunables  func() ResearchInput
	logger    *zap.Logger
}

// NewScheduler creates a scheduler. tunables is read on every Schedule call so
// new runs pick up reloaded engine settings.
func NewScheduler(c Starter, taskQueue string, tunables func() ResearchInput, logger *zap.Logger) *Scheduler {
	if taskQueue == "" {
		taskQueue = constants.DefaultTaskQueue
	}
	if tunables == nil {
		tunables = func() ResearchInput { return ResearchInput{} }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{client: c, taskQueue: taskQueue, tunables: tunables, logger: logger}
}

// Schedule starts the run after delay. The record id doubles as the Temporal
// workflow id and duplicates are rejected.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, workflowID string) error {
	input := s.tunables()
	input.WorkflowID = workflowID

	options := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             s.taskQueue,
		StartDelay:            delay,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		Memo:                  map[string]interface{}{"kind": "research"},
	}

	run, err := s.client.ExecuteWorkflow(ctx, options, constants.ResearchWorkflowName, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return fmt.Errorf("%w: %s", ErrAlreadyScheduled, workflowID)
		}
		return fmt.Errorf("failed to schedule research workflow %s: %w", workflowID, err)
	}

	s.logger.Info("Research workflow scheduled",
		zap.String("workflow_id", workflowID),
		zap.String("run_id", run.GetRunID()),
		zap.Duration("delay", delay),
	)
	return nil
}

// Registry is satisfied by worker.Worker and the Temporal test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register wires the research workflow and its activities into a worker.
func Register(r Registry, acts *activities.Activities) {
	r.RegisterWorkflowWithOptions(ResearchWorkflow, workflow.RegisterOptions{Name: constants.ResearchWorkflowName})

	r.RegisterActivityWithOptions(acts.StartResearch, activity.RegisterOptions{Name: constants.StartResearchActivity})
	r.RegisterActivityWithOptions(acts.AwaitProviders, activity.RegisterOptions{Name: constants.AwaitProvidersActivity})
	r.RegisterActivityWithOptions(acts.ExploreSubQuestion, activity.RegisterOptions{Name: constants.ExploreSubQuestionActivity})
	r.RegisterActivityWithOptions(acts.CompleteResearch, activity.RegisterOptions{Name: constants.CompleteResearchActivity})
	r.RegisterActivityWithOptions(acts.FailResearch, activity.RegisterOptions{Name: constants.FailResearchActivity})
	r.RegisterActivityWithOptions(acts.AppendTranscript, activity.RegisterOptions{Name: constants.AppendTranscriptActivity})
	r.RegisterActivityWithOptions(acts.DeliverToTracker, activity.RegisterOptions{Name: constants.DeliverToTrackerActivity})
}
