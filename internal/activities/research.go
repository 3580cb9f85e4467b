package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/delivery"
	"github.com/Kocoro-lab/repo-research/internal/metrics"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
	"github.com/Kocoro-lab/repo-research/internal/research"
)

// Error types reported on non-retryable application errors
const (
	ErrTypeWorkflowNotFound  = "WorkflowNotFound"
	ErrTypeInvalidTransition = "InvalidTransition"
	ErrTypeNotTerminal       = "NotTerminal"
)

// nonRetryable stops Temporal from retrying errors that cannot heal.
func nonRetryable(err error) error {
	switch {
	case errors.Is(err, db.ErrWorkflowNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeWorkflowNotFound, err)
	case errors.Is(err, db.ErrInvalidTransition):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidTransition, err)
	}
	return err
}

// StartResearch moves the record to in_progress and returns its inputs
func (a *Activities) StartResearch(ctx context.Context, in StartInput) (StartResult, error) {
	wf, err := a.store.GetResearchWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return StartResult{}, nonRetryable(err)
	}

	res := StartResult{
		Status:     wf.Status,
		SessionID:  wf.SessionID,
		Repository: wf.Repository,
		Question:   wf.Question,
		Depth:      wf.Depth,
	}
	if wf.ExternalTaskID != nil {
		res.ExternalTaskID = *wf.ExternalTaskID
	}
	if wf.Status.IsTerminal() {
		a.logger.Info("Research workflow already terminal, skipping run",
			zap.String("workflow_id", wf.ID),
			zap.String("status", string(wf.Status)),
		)
		res.Skip = true
		return res, nil
	}

	if err := a.store.MarkInProgress(ctx, wf.ID); err != nil {
		return StartResult{}, nonRetryable(err)
	}
	res.Status = research.StatusInProgress
	metrics.WorkflowsStarted.WithLabelValues(string(wf.Depth)).Inc()

	a.logger.Info("Research workflow started",
		zap.String("workflow_id", wf.ID),
		zap.String("repository", wf.Repository),
		zap.String("depth", string(wf.Depth)),
	)
	return res, nil
}

// AwaitProviders blocks until any capability provider is ready or the budget is spent
func (a *Activities) AwaitProviders(ctx context.Context, in AwaitProvidersInput) (readiness.Result, error) {
	started := time.Now()
	res := a.gate.Wait(ctx, readiness.Config{MaxAttempts: in.MaxAttempts, Interval: in.Interval})
	metrics.RecordReadiness("any", res.Ready, time.Since(started))

	if !res.Ready {
		a.logger.Warn("Capability providers not ready",
			zap.Int("attempts", res.Attempts),
			zap.Int("providers", res.ProviderCount),
			zap.String("reason", res.Reason),
		)
	}
	return res, nil
}

// ExploreSubQuestion runs one exploration. Failures are reported on the result.
func (a *Activities) ExploreSubQuestion(ctx context.Context, in ExploreInput) (research.Exploration, error) {
	started := time.Now()
	exp := a.explorer.Explore(ctx, in.Repository, in.SubQuestion)
	metrics.RecordExploration(exp.Success, len(exp.Files), time.Since(started))

	if !exp.Success {
		a.logger.Warn("Exploration failed",
			zap.String("workflow_id", in.WorkflowID),
			zap.String("sub_question", in.SubQuestion),
			zap.String("error", exp.Error),
		)
	}
	return exp, nil
}

// CompleteResearch stores the synthesis. Re-recording a completed record is a no-op.
func (a *Activities) CompleteResearch(ctx context.Context, in CompleteInput) error {
	wf, err := a.store.GetResearchWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return nonRetryable(err)
	}
	if err := a.store.MarkCompleted(ctx, in.WorkflowID, in.Results); err != nil {
		return nonRetryable(err)
	}

	metrics.RecordWorkflowMetrics(string(research.StatusCompleted), "", elapsed(wf))
	a.logger.Info("Research workflow completed",
		zap.String("workflow_id", in.WorkflowID),
		zap.Int("result_length", len(in.Results)),
	)
	return nil
}

// FailResearch stores a workflow-level failure
func (a *Activities) FailResearch(ctx context.Context, in FailInput) error {
	wf, err := a.store.GetResearchWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return nonRetryable(err)
	}
	if err := a.store.MarkFailed(ctx, in.WorkflowID, in.Error); err != nil {
		return nonRetryable(err)
	}

	reason := in.Reason
	if reason == "" {
		reason = "unknown"
	}
	metrics.RecordWorkflowMetrics(string(research.StatusFailed), reason, elapsed(wf))
	a.logger.Warn("Research workflow failed",
		zap.String("workflow_id", in.WorkflowID),
		zap.String("reason", reason),
		zap.String("error", in.Error),
	)
	return nil
}

// AppendTranscript appends the entry matching the stored terminal status and
// returns that status. The transcript marker keeps retries to exactly one
// entry per record.
func (a *Activities) AppendTranscript(ctx context.Context, in TranscriptInput) (research.Status, error) {
	wf, err := a.store.GetResearchWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return "", nonRetryable(err)
	}

	r := report(wf)
	switch wf.Status {
	case research.StatusCompleted:
		r.Error = ""
		err = a.sink.AppendResult(ctx, r)
	case research.StatusFailed:
		r.Results = ""
		err = a.sink.AppendFailure(ctx, r)
	default:
		msg := fmt.Sprintf("research workflow %s is %s, not terminal", wf.ID, wf.Status)
		return "", temporal.NewNonRetryableApplicationError(msg, ErrTypeNotTerminal, nil)
	}
	if err != nil {
		return "", fmt.Errorf("append %s transcript entry: %w", wf.Status, err)
	}

	metrics.TranscriptAppends.WithLabelValues(string(wf.Status)).Inc()
	return wf.Status, nil
}

// DeliverToTracker posts completed results to the external tracker.
// The outcome is informational; this activity never fails the workflow.
func (a *Activities) DeliverToTracker(ctx context.Context, in TrackerInput) (delivery.Outcome, error) {
	var out delivery.Outcome
	wf, err := a.store.GetResearchWorkflow(ctx, in.WorkflowID)
	switch {
	case err != nil:
		out = delivery.Outcome{Status: delivery.OutcomeFailed, Reason: err.Error()}
	case wf.Status != research.StatusCompleted:
		out = delivery.Outcome{Status: delivery.OutcomeSkipped, Reason: "workflow is " + string(wf.Status)}
	default:
		out = a.sink.PostToTracker(ctx, report(wf), a.tracker())
	}
	metrics.TrackerDeliveries.WithLabelValues(string(out.Status)).Inc()
	return out, nil
}

func elapsed(wf *db.ResearchWorkflow) time.Duration {
	if wf.StartedAt == nil {
		return 0
	}
	return time.Since(*wf.StartedAt)
}
