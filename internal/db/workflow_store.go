package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/research"
)

const workflowColumns = `id, session_id, repository, question, depth, external_task_id, status,
	results, error, created_at, updated_at, started_at, completed_at`

// CreateResearchWorkflow persists a new pending workflow and returns it
func (c *Client) CreateResearchWorkflow(ctx context.Context, in NewWorkflow) (*ResearchWorkflow, error) {
	now := time.Now().UTC()
	wf := &ResearchWorkflow{
		ID:         uuid.NewString(),
		SessionID:  in.SessionID,
		Repository: in.Repository,
		Question:   in.Question,
		Depth:      in.Depth,
		Status:     research.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.ExternalTaskID != "" {
		task := in.ExternalTaskID
		wf.ExternalTaskID = &task
	}

	query := c.db.Rebind(`INSERT INTO research_workflows (` + workflowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	err := c.exec(ctx, func() error {
		_, err := c.db.ExecContext(ctx, query,
			wf.ID, wf.SessionID, wf.Repository, wf.Question, string(wf.Depth), wf.ExternalTaskID,
			string(wf.Status), nil, nil, wf.CreatedAt, wf.UpdatedAt, nil, nil,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create research workflow: %w", err)
	}

	c.logger.Debug("Research workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("repository", wf.Repository),
		zap.String("depth", string(wf.Depth)),
	)
	return wf, nil
}

// GetResearchWorkflow loads one workflow by id
func (c *Client) GetResearchWorkflow(ctx context.Context, id string) (*ResearchWorkflow, error) {
	query := c.db.Rebind(`SELECT ` + workflowColumns + ` FROM research_workflows WHERE id = ?`)

	var wf ResearchWorkflow
	err := c.exec(ctx, func() error {
		err := c.db.GetContext(ctx, &wf, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get research workflow %s: %w", id, err)
	}
	if wf.ID == "" {
		return nil, ErrWorkflowNotFound
	}
	return &wf, nil
}

// ListResearchWorkflows returns workflows newest first
func (c *Client) ListResearchWorkflows(ctx context.Context, opts ListOptions) ([]ResearchWorkflow, error) {
	var (
		where []string
		args  []interface{}
	)
	if opts.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, opts.SessionID)
	}

	query := `SELECT ` + workflowColumns + ` FROM research_workflows`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, opts.limit())
	query = c.db.Rebind(query)

	workflows := []ResearchWorkflow{}
	err := c.exec(ctx, func() error {
		return c.db.SelectContext(ctx, &workflows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list research workflows: %w", err)
	}
	return workflows, nil
}

// MarkInProgress moves a pending workflow to in_progress
func (c *Client) MarkInProgress(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return c.transition(ctx, id, research.StatusInProgress,
		[]research.Status{research.StatusPending},
		`status = ?, started_at = ?, updated_at = ?`,
		string(research.StatusInProgress), now, now,
	)
}

// MarkCompleted stores the synthesis and moves an in_progress workflow to completed
func (c *Client) MarkCompleted(ctx context.Context, id, results string) error {
	now := time.Now().UTC()
	return c.transition(ctx, id, research.StatusCompleted,
		[]research.Status{research.StatusInProgress},
		`status = ?, results = ?, error = NULL, completed_at = ?, updated_at = ?`,
		string(research.StatusCompleted), results, now, now,
	)
}

// MarkFailed stores the error and moves a non-terminal workflow to failed
func (c *Client) MarkFailed(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	return c.transition(ctx, id, research.StatusFailed,
		[]research.Status{research.StatusPending, research.StatusInProgress},
		`status = ?, error = ?, results = NULL, completed_at = ?, updated_at = ?`,
		string(research.StatusFailed), message, now, now,
	)
}

// transition applies a conditional status update. Re-applying the status a
// workflow already has is a no-op; any other mismatch is ErrInvalidTransition.
func (c *Client) transition(ctx context.Context, id string, to research.Status, from []research.Status, set string, setArgs ...interface{}) error {
	query, args, err := sqlx.In(
		`UPDATE research_workflows SET `+set+` WHERE id = ? AND status IN (?)`,
		append(setArgs, id, statusStrings(from))...,
	)
	if err != nil {
		return fmt.Errorf("failed to build transition query: %w", err)
	}
	query = c.db.Rebind(query)

	var affected int64
	err = c.exec(ctx, func() error {
		res, err := c.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark research workflow %s %s: %w", id, to, err)
	}
	if affected > 0 {
		c.logger.Debug("Research workflow status updated",
			zap.String("workflow_id", id),
			zap.String("status", string(to)),
		)
		return nil
	}

	current, err := c.GetResearchWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

func statusStrings(statuses []research.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
