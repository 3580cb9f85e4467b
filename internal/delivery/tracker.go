package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
	"github.com/Kocoro-lab/repo-research/internal/metrics"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
)

// OutcomeStatus classifies a tracker post attempt.
type OutcomeStatus string

const (
	OutcomePosted       OutcomeStatus = "posted"
	OutcomeSkipped      OutcomeStatus = "skipped"
	OutcomeNotReady     OutcomeStatus = "not_ready"
	OutcomeNoCapability OutcomeStatus = "no_capability"
	OutcomeFailed       OutcomeStatus = "failed"
)

// Outcome is the logged-and-discarded result of a tracker post.
type Outcome struct {
	Status     OutcomeStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	Capability string        `json:"capability,omitempty"`
}

const commentTemplate = `## Repository research

**Repository:** %s
**Question:** %s

%s

---
_Posted automatically by repo-research._`

// FormatComment renders the tracker comment body.
func FormatComment(repository, question, results string) string {
	return fmt.Sprintf(commentTemplate, repository, question, results)
}

// PostToTracker posts the results as a comment on the external task. It
// never returns an error; every failure is folded into the Outcome.
func (s *Sink) PostToTracker(ctx context.Context, r Report, cfg TrackerConfig) (out Outcome) {
	if r.ExternalTaskID == "" {
		return Outcome{Status: OutcomeSkipped, Reason: "no external task reference"}
	}
	def := DefaultTrackerConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.TaskArg == "" {
		cfg.TaskArg = def.TaskArg
	}
	if cfg.BodyArg == "" {
		cfg.BodyArg = def.BodyArg
	}

	logger := s.logger.With(
		zap.String("workflow_id", r.WorkflowID),
		zap.String("external_task_id", r.ExternalTaskID),
		zap.String("provider", cfg.Provider),
	)
	defer func() {
		if rec := recover(); rec != nil {
			out = Outcome{Status: OutcomeFailed, Reason: fmt.Sprintf("panic: %v", rec), Provider: cfg.Provider}
		}
		if out.Status == OutcomePosted {
			logger.Info("Research results posted to tracker", zap.String("capability", out.Capability))
		} else {
			logger.Warn("Tracker delivery did not complete", zap.String("status", string(out.Status)), zap.String("reason", out.Reason))
		}
	}()

	waitStarted := time.Now()
	ready := s.gate.Wait(ctx, readiness.Config{
		Provider:    cfg.Provider,
		MaxAttempts: cfg.MaxAttempts,
		Interval:    cfg.Interval,
	})
	metrics.RecordReadiness("named", ready.Ready, time.Since(waitStarted))
	if !ready.Ready {
		return Outcome{Status: OutcomeNotReady, Reason: ready.Reason, Provider: cfg.Provider}
	}

	comment, ok := s.finder.Find(cfg.Provider, capabilities.CreateComment)
	if !ok {
		return Outcome{Status: OutcomeNoCapability, Reason: "no comment capability on provider", Provider: cfg.Provider}
	}

	res, err := comment.Invoke(ctx, map[string]any{
		cfg.TaskArg: r.ExternalTaskID,
		cfg.BodyArg: FormatComment(r.Repository, r.Question, r.Results),
	})
	switch {
	case err != nil:
		return Outcome{Status: OutcomeFailed, Reason: err.Error(), Provider: cfg.Provider, Capability: comment.Name()}
	case res.IsError:
		return Outcome{Status: OutcomeFailed, Reason: res.Text, Provider: cfg.Provider, Capability: comment.Name()}
	}
	return Outcome{Status: OutcomePosted, Provider: comment.Provider(), Capability: comment.Name()}
}
