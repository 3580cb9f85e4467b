// Package delivery reports research outcomes to the conversation transcript
// and, best-effort, to an external task tracker.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
	"github.com/Kocoro-lab/repo-research/internal/transcript"
)

// FailurePrefix marks transcript entries that report a failed workflow.
const FailurePrefix = "❌ "

// Transcript is the append side of the conversation log.
type Transcript interface {
	Append(ctx context.Context, conversationID, deliveryKey string, entry transcript.Entry) error
}

// Waiter is the readiness primitive the tracker path gates on.
type Waiter interface {
	Wait(ctx context.Context, cfg readiness.Config) readiness.Result
}

// TrackerConfig selects the tracker provider and how long to wait for it.
type TrackerConfig struct {
	Provider    string        `mapstructure:"provider"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	TaskArg     string        `mapstructure:"task_arg"`
	BodyArg     string        `mapstructure:"body_arg"`
}

// DefaultTrackerConfig targets a Linear MCP server.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Provider:    "linear",
		MaxAttempts: 10,
		Interval:    time.Second,
		TaskArg:     "issueId",
		BodyArg:     "body",
	}
}

// Report describes one finished workflow.
type Report struct {
	WorkflowID     string
	SessionID      string
	Repository     string
	Question       string
	ExternalTaskID string
	Results        string
	Error          string
}

// Sink delivers reports.
type Sink struct {
	transcript Transcript
	finder     capabilities.Registry
	gate       Waiter
	logger     *zap.Logger
}

// NewSink creates a delivery sink.
func NewSink(t Transcript, registry capabilities.Registry, gate Waiter, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{transcript: t, finder: registry, gate: gate, logger: logger}
}

// AppendResult writes the assistant entry for a completed workflow.
func (s *Sink) AppendResult(ctx context.Context, r Report) error {
	content := fmt.Sprintf("Research on %s finished.\n\n**Question:** %s\n\n%s", r.Repository, r.Question, r.Results)
	return s.append(ctx, r, "completed", content)
}

// AppendFailure writes the assistant error entry for a failed workflow.
func (s *Sink) AppendFailure(ctx context.Context, r Report) error {
	content := fmt.Sprintf("%sResearch on %s failed.\n\n**Question:** %s\n\n**Error:** %s", FailurePrefix, r.Repository, r.Question, r.Error)
	return s.append(ctx, r, "failed", content)
}

func (s *Sink) append(ctx context.Context, r Report, status, content string) error {
	err := s.transcript.Append(ctx, r.SessionID, r.WorkflowID, transcript.Entry{
		Role:    transcript.RoleAssistant,
		Content: content,
		Metadata: map[string]string{
			"workflow_id": r.WorkflowID,
			"repository":  r.Repository,
			"status":      status,
		},
	})
	if errors.Is(err, transcript.ErrAlreadyDelivered) {
		s.logger.Info("Transcript entry already delivered", zap.String("workflow_id", r.WorkflowID))
		return nil
	}
	return err
}
