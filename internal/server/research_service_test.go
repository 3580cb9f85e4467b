package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/research"
)

type fakeStore struct {
	created []db.NewWorkflow
	failed  map[string]string
	rows    map[string]*db.ResearchWorkflow
	listed  []db.ListOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{failed: map[string]string{}, rows: map[string]*db.ResearchWorkflow{}}
}

func (f *fakeStore) CreateResearchWorkflow(ctx context.Context, in db.NewWorkflow) (*db.ResearchWorkflow, error) {
	f.created = append(f.created, in)
	wf := &db.ResearchWorkflow{
		ID:         "wf-" + string(rune('0'+len(f.created))),
		SessionID:  in.SessionID,
		Repository: in.Repository,
		Question:   in.Question,
		Depth:      in.Depth,
		Status:     research.StatusPending,
	}
	f.rows[wf.ID] = wf
	return wf, nil
}

func (f *fakeStore) GetResearchWorkflow(ctx context.Context, id string) (*db.ResearchWorkflow, error) {
	wf, ok := f.rows[id]
	if !ok {
		return nil, db.ErrWorkflowNotFound
	}
	return wf, nil
}

func (f *fakeStore) ListResearchWorkflows(ctx context.Context, opts db.ListOptions) ([]db.ResearchWorkflow, error) {
	f.listed = append(f.listed, opts)
	return []db.ResearchWorkflow{}, nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id, message string) error {
	f.failed[id] = message
	return nil
}

type scheduledCall struct {
	delay time.Duration
	id    string
}

type fakeScheduler struct {
	calls []scheduledCall
	err   error
}

func (f *fakeScheduler) Schedule(ctx context.Context, delay time.Duration, workflowID string) error {
	f.calls = append(f.calls, scheduledCall{delay, workflowID})
	return f.err
}

func validRequest() StartRequest {
	return StartRequest{
		SessionID:  "session-1",
		Repository: "acme/api",
		Question:   "How is auth handled?",
	}
}

func TestStartCreatesThenSchedules(t *testing.T) {
	store, sched := newFakeStore(), &fakeScheduler{}
	svc := NewResearchService(store, sched, zaptest.NewLogger(t))

	wf, err := svc.Start(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, research.StatusPending, wf.Status)
	assert.Equal(t, research.DepthMedium, wf.Depth)

	require.Len(t, sched.calls, 1)
	assert.Equal(t, scheduledCall{0, wf.ID}, sched.calls[0])
	assert.Empty(t, store.failed)
}

func TestStartFailsRecordWhenScheduleFails(t *testing.T) {
	store, sched := newFakeStore(), &fakeScheduler{err: errors.New("temporal unavailable")}
	svc := NewResearchService(store, sched, zaptest.NewLogger(t))

	_, err := svc.Start(context.Background(), validRequest())
	require.Error(t, err)
	require.Len(t, store.created, 1)
	assert.Contains(t, store.failed["wf-1"], "temporal unavailable")
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StartRequest)
	}{
		{"missing session", func(r *StartRequest) { r.SessionID = " " }},
		{"bare repository", func(r *StartRequest) { r.Repository = "api" }},
		{"repository url", func(r *StartRequest) { r.Repository = "https://github.com/acme/api" }},
		{"empty question", func(r *StartRequest) { r.Question = "   " }},
		{"bad depth", func(r *StartRequest) { r.Depth = "exhaustive" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, sched := newFakeStore(), &fakeScheduler{}
			svc := NewResearchService(store, sched, zaptest.NewLogger(t))

			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Start(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, store.created)
			assert.Empty(t, sched.calls)
		})
	}
}

func TestStartNormalizesInput(t *testing.T) {
	store := newFakeStore()
	svc := NewResearchService(store, &fakeScheduler{}, zaptest.NewLogger(t))

	_, err := svc.Start(context.Background(), StartRequest{
		SessionID:      " session-1 ",
		Repository:     " acme/api ",
		Question:       " Where are migrations? ",
		Depth:          "THOROUGH",
		ExternalTaskID: " LIN-9 ",
	})
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, db.NewWorkflow{
		SessionID:      "session-1",
		Repository:     "acme/api",
		Question:       "Where are migrations?",
		Depth:          research.DepthThorough,
		ExternalTaskID: "LIN-9",
	}, store.created[0])
}

func TestGetAndList(t *testing.T) {
	store := newFakeStore()
	svc := NewResearchService(store, &fakeScheduler{}, zaptest.NewLogger(t))

	_, err := svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrWorkflowNotFound)

	_, err = svc.List(context.Background(), db.ListOptions{Limit: 5, SessionID: "session-1"})
	require.NoError(t, err)
	assert.Equal(t, []db.ListOptions{{Limit: 5, SessionID: "session-1"}}, store.listed)
}
