package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/httpapi"
	"github.com/Kocoro-lab/repo-research/internal/research"
	"github.com/Kocoro-lab/repo-research/internal/server"
)

type stubService struct {
	started []server.StartRequest
	listed  []db.ListOptions
	rows    map[string]*db.ResearchWorkflow
}

func (s *stubService) Start(ctx context.Context, req server.StartRequest) (*db.ResearchWorkflow, error) {
	s.started = append(s.started, req)
	return &db.ResearchWorkflow{
		ID:         "wf-new",
		SessionID:  req.SessionID,
		Repository: req.Repository,
		Question:   req.Question,
		Depth:      research.DepthMedium,
		Status:     research.StatusPending,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (s *stubService) Get(ctx context.Context, id string) (*db.ResearchWorkflow, error) {
	if wf, ok := s.rows[id]; ok {
		return wf, nil
	}
	return nil, db.ErrWorkflowNotFound
}

func (s *stubService) List(ctx context.Context, opts db.ListOptions) ([]db.ResearchWorkflow, error) {
	s.listed = append(s.listed, opts)
	out := make([]db.ResearchWorkflow, 0, len(s.rows))
	for _, wf := range s.rows {
		out = append(out, *wf)
	}
	return out, nil
}

func newTestServer(t *testing.T, svc *stubService) *httptest.Server {
	mux := http.NewServeMux()
	httpapi.NewResearchHandler(svc, zaptest.NewLogger(t)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func completedRow() *db.ResearchWorkflow {
	results := "# Research: How is auth handled?\n\nbody"
	task := "LIN-7"
	done := time.Date(2026, 1, 2, 3, 10, 0, 0, time.UTC)
	return &db.ResearchWorkflow{
		ID:             "wf-1",
		SessionID:      "s1",
		Repository:     "acme/api",
		Question:       "How is auth handled?",
		Depth:          research.DepthQuick,
		Status:         research.StatusCompleted,
		ExternalTaskID: &task,
		Results:        &results,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CompletedAt:    &done,
	}
}

func TestSubmit(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)

	out, err := run(t, srv, "submit", "--session", "s1", "--repo", "acme/api", "-q", "How is auth handled?", "--task", "LIN-7")
	require.NoError(t, err)
	assert.Contains(t, out, "wf-new")
	assert.Contains(t, out, "pending")

	require.Len(t, svc.started, 1)
	assert.Equal(t, server.StartRequest{
		SessionID:      "s1",
		Repository:     "acme/api",
		Question:       "How is auth handled?",
		ExternalTaskID: "LIN-7",
	}, svc.started[0])
}

func TestSubmitRequiresFlags(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	_, err := run(t, srv, "submit", "--session", "s1")
	assert.Error(t, err)
}

func TestGetDetail(t *testing.T) {
	srv := newTestServer(t, &stubService{rows: map[string]*db.ResearchWorkflow{"wf-1": completedRow()}})

	out, err := run(t, srv, "get", "wf-1")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "LIN-7")
	assert.Contains(t, out, "# Research: How is auth handled?")
}

func TestGetJSONAndYAML(t *testing.T) {
	srv := newTestServer(t, &stubService{rows: map[string]*db.ResearchWorkflow{"wf-1": completedRow()}})

	out, err := run(t, srv, "-o", "json", "get", "wf-1")
	require.NoError(t, err)
	var wf db.ResearchWorkflow
	require.NoError(t, json.Unmarshal([]byte(out), &wf))
	assert.Equal(t, research.StatusCompleted, wf.Status)

	out, err = run(t, srv, "-o", "yaml", "get", "wf-1")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &v))
	assert.Equal(t, "completed", v["status"])
	assert.Equal(t, "LIN-7", v["external_task_id"])
}

func TestGetNotFound(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	_, err := run(t, srv, "get", "missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Contains(t, apiErr.Message, "not found")
}

func TestList(t *testing.T) {
	svc := &stubService{rows: map[string]*db.ResearchWorkflow{"wf-1": completedRow()}}
	srv := newTestServer(t, svc)

	out, err := run(t, srv, "list", "--limit", "5", "--session", "s1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "wf-1")
	assert.Equal(t, []db.ListOptions{{Limit: 5, SessionID: "s1"}}, svc.listed)
}

func TestInvalidOutput(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	_, err := run(t, srv, "-o", "xml", "list")
	assert.ErrorContains(t, err, "invalid output")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcd…", clip("abcdefgh", 5))
}
