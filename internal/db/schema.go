package db

import (
	"context"
	"fmt"
	"strings"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS research_workflows (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	repository       TEXT NOT NULL,
	question         TEXT NOT NULL,
	depth            TEXT NOT NULL,
	external_task_id TEXT,
	status           TEXT NOT NULL,
	results          TEXT,
	error            TEXT,
	created_at       {{ts}} NOT NULL,
	updated_at       {{ts}} NOT NULL,
	started_at       {{ts}},
	completed_at     {{ts}},
	CHECK (depth IN ('quick', 'medium', 'thorough')),
	CHECK (
		(status IN ('pending', 'in_progress') AND results IS NULL AND error IS NULL) OR
		(status = 'completed' AND results IS NOT NULL AND error IS NULL) OR
		(status = 'failed' AND error IS NOT NULL AND results IS NULL)
	)
)`

const indexStatement = `CREATE INDEX IF NOT EXISTS idx_research_workflows_session_created
	ON research_workflows (session_id, created_at DESC)`

// SchemaStatements returns the DDL for the given driver
func SchemaStatements(driver string) []string {
	ts := "TIMESTAMPTZ"
	if driver == DriverSQLite {
		ts = "DATETIME"
	}
	return []string{
		strings.ReplaceAll(schemaTemplate, "{{ts}}", ts),
		indexStatement,
	}
}

// EnsureSchema creates the workflow table and index if they do not exist
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SchemaStatements(c.db.DriverName()) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
