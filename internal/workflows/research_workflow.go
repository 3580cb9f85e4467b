package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/repo-research/internal/activities"
	"github.com/Kocoro-lab/repo-research/internal/constants"
	"github.com/Kocoro-lab/repo-research/internal/delivery"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
	"github.com/Kocoro-lab/repo-research/internal/research"
)

// Defaults applied to zero-valued ResearchInput tunables.
const (
	DefaultMinResultLength   = 50
	DefaultMaxConcurrency    = 6
	DefaultCompletionTimeout = 2 * time.Minute
	DefaultExploreTimeout    = 2 * time.Minute
	DefaultTrackerTimeout    = 2 * time.Minute
)

// ResearchInput starts one run for an existing record. Tunables are fixed
// at schedule time so replays see the same values.
type ResearchInput struct {
	WorkflowID        string        `json:"workflow_id"`
	ReadinessAttempts int           `json:"readiness_attempts"`
	ReadinessInterval time.Duration `json:"readiness_interval"`
	MinResultLength   int           `json:"min_result_length"`
	MaxConcurrency    int           `json:"max_concurrency"`
	CompletionTimeout time.Duration `json:"completion_timeout"`
	ExploreTimeout    time.Duration `json:"explore_timeout"`
	TrackerTimeout    time.Duration `json:"tracker_timeout"`
}

func (in ResearchInput) withDefaults() ResearchInput {
	if in.ReadinessAttempts <= 0 {
		in.ReadinessAttempts = readiness.DefaultMaxAttempts
	}
	if in.ReadinessInterval <= 0 {
		in.ReadinessInterval = readiness.DefaultInterval
	}
	if in.MinResultLength <= 0 {
		in.MinResultLength = DefaultMinResultLength
	}
	if in.MaxConcurrency <= 0 {
		in.MaxConcurrency = DefaultMaxConcurrency
	}
	if in.CompletionTimeout <= 0 {
		in.CompletionTimeout = DefaultCompletionTimeout
	}
	if in.ExploreTimeout <= 0 {
		in.ExploreTimeout = DefaultExploreTimeout
	}
	if in.TrackerTimeout <= 0 {
		in.TrackerTimeout = DefaultTrackerTimeout
	}
	return in
}

// ResearchResult summarizes a run
type ResearchResult struct {
	WorkflowID   string            `json:"workflow_id"`
	Status       research.Status   `json:"status"`
	Error        string            `json:"error,omitempty"`
	Skipped      bool              `json:"skipped,omitempty"`
	Explorations int               `json:"explorations"`
	Succeeded    int               `json:"succeeded"`
	Tracker      *delivery.Outcome `json:"tracker,omitempty"`
}

// ResearchWorkflow drives one record from pending to a terminal state:
// readiness gate, decomposition, bounded fan-out of explorations, synthesis,
// persistence and delivery. Handled failures end the record in failed and
// return a nil error so Temporal does not retry the run.
func ResearchWorkflow(ctx workflow.Context, in ResearchInput) (ResearchResult, error) {
	in = in.withDefaults()
	logger := workflow.GetLogger(ctx)
	result := ResearchResult{WorkflowID: in.WorkflowID}

	lifecycleCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})

	var start activities.StartResult
	if err := workflow.ExecuteActivity(lifecycleCtx, constants.StartResearchActivity,
		activities.StartInput{WorkflowID: in.WorkflowID}).Get(ctx, &start); err != nil {
		logger.Error("Failed to start research workflow", "workflow_id", in.WorkflowID, "error", err)
		if hasErrorType(err, activities.ErrTypeWorkflowNotFound) {
			return result, err
		}
		return failResearch(lifecycleCtx, in.WorkflowID, fmt.Errorf("start research: %s", activityMessage(err)), result)
	}
	if start.Skip {
		result.Status = start.Status
		result.Skipped = true
		return result, nil
	}

	logger.Info("Research workflow running",
		"workflow_id", in.WorkflowID,
		"repository", start.Repository,
		"depth", string(start.Depth),
	)

	synthesis, err := runPipeline(ctx, in, start, &result)
	if err != nil {
		return failResearch(lifecycleCtx, in.WorkflowID, err, result)
	}

	completeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: in.CompletionTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})
	if err := workflow.ExecuteActivity(completeCtx, constants.CompleteResearchActivity,
		activities.CompleteInput{WorkflowID: in.WorkflowID, Results: synthesis}).Get(ctx, nil); err != nil {
		logger.Error("Failed to record research results", "workflow_id", in.WorkflowID, "error", err)
		return failResearch(lifecycleCtx, in.WorkflowID, fmt.Errorf("record results: %s", activityMessage(err)), result)
	}
	result.Status = research.StatusCompleted
	if _, err := appendTranscript(ctx, in.WorkflowID); err != nil {
		return result, err
	}

	if start.ExternalTaskID != "" {
		trackerCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: in.TrackerTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})
		var outcome delivery.Outcome
		if err := workflow.ExecuteActivity(trackerCtx, constants.DeliverToTrackerActivity,
			activities.TrackerInput{WorkflowID: in.WorkflowID}).Get(ctx, &outcome); err != nil {
			outcome = delivery.Outcome{Status: delivery.OutcomeFailed, Reason: activityMessage(err)}
		}
		logger.Info("Tracker delivery finished",
			"workflow_id", in.WorkflowID,
			"status", string(outcome.Status),
			"reason", outcome.Reason,
		)
		result.Tracker = &outcome
	}
	return result, nil
}

// runPipeline runs everything between start and completion. Any returned
// error is a workflow-level failure.
func runPipeline(ctx workflow.Context, in ResearchInput, start activities.StartResult, result *ResearchResult) (string, error) {
	logger := workflow.GetLogger(ctx)

	awaitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(in.ReadinessAttempts)*in.ReadinessInterval + 30*time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var ready readiness.Result
	if err := workflow.ExecuteActivity(awaitCtx, constants.AwaitProvidersActivity,
		activities.AwaitProvidersInput{MaxAttempts: in.ReadinessAttempts, Interval: in.ReadinessInterval}).Get(ctx, &ready); err != nil {
		return "", fmt.Errorf("%w: %s", research.ErrProviderNotReady, activityMessage(err))
	}
	if !ready.Ready {
		if ready.ProviderCount == 0 {
			return "", fmt.Errorf("%w: %s", research.ErrProviderUnavailable, ready.Reason)
		}
		return "", fmt.Errorf("%w: %s", research.ErrProviderNotReady, ready.Reason)
	}

	subQuestions := research.Decompose(start.Question, start.Depth)
	explorations := exploreAll(ctx, in, start.Repository, subQuestions)

	successful := research.Successful(explorations)
	result.Explorations = len(explorations)
	result.Succeeded = len(successful)
	logger.Info("Explorations finished",
		"workflow_id", in.WorkflowID,
		"attempted", len(explorations),
		"succeeded", len(successful),
	)
	if len(successful) == 0 {
		return "", research.AllExplorationsFailed(explorations)
	}

	synthesis := research.Synthesize(start.Question, successful)
	if len(synthesis) < in.MinResultLength {
		return "", research.InsufficientResult(len(synthesis), in.MinResultLength)
	}
	return synthesis, nil
}

// exploreAll fans out one exploration per sub-question, bounded by a
// semaphore, and waits for every one of them before returning.
func exploreAll(ctx workflow.Context, in ResearchInput, repository string, subQuestions []string) []research.Exploration {
	logger := workflow.GetLogger(ctx)
	exploreCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: in.ExploreTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 2,
		},
	})

	sem := workflow.NewSemaphore(ctx, int64(in.MaxConcurrency))
	wg := workflow.NewWaitGroup(ctx)
	explorations := make([]research.Exploration, len(subQuestions))

	for i, subQuestion := range subQuestions {
		wg.Add(1)
		workflow.Go(exploreCtx, func(gctx workflow.Context) {
			defer wg.Done()
			if err := sem.Acquire(gctx, 1); err != nil {
				logger.Error("Failed to acquire exploration slot", "sub_question", subQuestion, "error", err)
				explorations[i] = research.Exploration{SubQuestion: subQuestion, Files: []string{}, Error: err.Error()}
				return
			}
			defer sem.Release(1)

			var exp research.Exploration
			err := workflow.ExecuteActivity(gctx, constants.ExploreSubQuestionActivity, activities.ExploreInput{
				WorkflowID:  in.WorkflowID,
				Repository:  repository,
				SubQuestion: subQuestion,
			}).Get(gctx, &exp)
			if err != nil {
				exp = research.Exploration{SubQuestion: subQuestion, Files: []string{}, Error: activityMessage(err)}
			}
			explorations[i] = exp
		})
	}
	wg.Wait(ctx)
	return explorations
}

func failResearch(ctx workflow.Context, workflowID string, cause error, result ResearchResult) (ResearchResult, error) {
	logger := workflow.GetLogger(ctx)
	message := cause.Error()
	logger.Warn("Research workflow failing", "workflow_id", workflowID, "reason", research.Kind(cause), "error", message)

	if err := workflow.ExecuteActivity(ctx, constants.FailResearchActivity, activities.FailInput{
		WorkflowID: workflowID,
		Error:      message,
		Reason:     research.Kind(cause),
	}).Get(ctx, nil); err != nil {
		if !hasErrorType(err, activities.ErrTypeInvalidTransition) {
			logger.Error("Failed to record research failure", "workflow_id", workflowID, "error", err)
			return result, err
		}
		// Already terminal: an earlier write landed. Deliver what is stored.
		logger.Warn("Research workflow already terminal", "workflow_id", workflowID, "error", err)
		status, err := appendTranscript(ctx, workflowID)
		if err != nil {
			return result, err
		}
		result.Status = status
		return result, nil
	}
	result.Status = research.StatusFailed
	result.Error = message
	if _, err := appendTranscript(ctx, workflowID); err != nil {
		return result, err
	}
	return result, nil
}

// appendTranscript delivers the entry for the recorded terminal status under
// its own retry budget.
func appendTranscript(ctx workflow.Context, workflowID string) (research.Status, error) {
	transcriptCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        10,
			NonRetryableErrorTypes: []string{activities.ErrTypeWorkflowNotFound, activities.ErrTypeNotTerminal},
		},
	})
	var status research.Status
	err := workflow.ExecuteActivity(transcriptCtx, constants.AppendTranscriptActivity,
		activities.TranscriptInput{WorkflowID: workflowID}).Get(ctx, &status)
	if err != nil {
		workflow.GetLogger(ctx).Error("Failed to append transcript entry", "workflow_id", workflowID, "error", err)
	}
	return status, err
}

func hasErrorType(err error, errType string) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == errType
}

// activityMessage strips the activity-error envelope from err.
func activityMessage(err error) string {
	var actErr *temporal.ActivityError
	if errors.As(err, &actErr) {
		if cause := errors.Unwrap(actErr); cause != nil {
			var appErr *temporal.ApplicationError
			if errors.As(cause, &appErr) {
				return appErr.Message()
			}
			return cause.Error()
		}
	}
	return err.Error()
}
