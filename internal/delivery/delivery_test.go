package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
	"github.com/Kocoro-lab/repo-research/internal/readiness"
	"github.com/Kocoro-lab/repo-research/internal/transcript"
)

type recordedAppend struct {
	conversationID string
	deliveryKey    string
	entry          transcript.Entry
}

type fakeTranscript struct {
	appends []recordedAppend
	err     error
}

func (f *fakeTranscript) Append(ctx context.Context, conversationID, deliveryKey string, entry transcript.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.appends = append(f.appends, recordedAppend{conversationID, deliveryKey, entry})
	return nil
}

type fakeWaiter struct {
	result readiness.Result
	got    readiness.Config
}

func (f *fakeWaiter) Wait(ctx context.Context, cfg readiness.Config) readiness.Result {
	f.got = cfg
	return f.result
}

type fakeComment struct {
	args  map[string]any
	res   capabilities.Result
	err   error
	panic bool
}

func (f *fakeComment) Name() string     { return "create_comment" }
func (f *fakeComment) Provider() string { return "linear" }
func (f *fakeComment) Invoke(ctx context.Context, args map[string]any) (capabilities.Result, error) {
	if f.panic {
		panic("tracker client nil")
	}
	f.args = args
	return f.res, f.err
}

type fakeRegistry struct {
	comment capabilities.Capability
	asked   string
}

func (f *fakeRegistry) Snapshot() []capabilities.ProviderStatus { return nil }
func (f *fakeRegistry) Find(provider string, match capabilities.Matcher) (capabilities.Capability, bool) {
	f.asked = provider
	if f.comment == nil || !match(f.comment.Name()) {
		return nil, false
	}
	return f.comment, true
}

func report() Report {
	return Report{
		WorkflowID:     "wf-1",
		SessionID:      "session-1",
		Repository:     "acme/api",
		Question:       "How is auth handled?",
		ExternalTaskID: "LIN-42",
		Results:        "# Research: How is auth handled?\n\n## Relevant Files\n",
		Error:          "",
	}
}

func TestAppendResult(t *testing.T) {
	tr := &fakeTranscript{}
	sink := NewSink(tr, &fakeRegistry{}, &fakeWaiter{}, zaptest.NewLogger(t))

	require.NoError(t, sink.AppendResult(context.Background(), report()))
	require.Len(t, tr.appends, 1)

	got := tr.appends[0]
	assert.Equal(t, "session-1", got.conversationID)
	assert.Equal(t, "wf-1", got.deliveryKey)
	assert.Equal(t, transcript.RoleAssistant, got.entry.Role)
	assert.Contains(t, got.entry.Content, "How is auth handled?")
	assert.Contains(t, got.entry.Content, "# Research: How is auth handled?")
	assert.False(t, strings.HasPrefix(got.entry.Content, FailurePrefix))
	assert.Equal(t, "completed", got.entry.Metadata["status"])
}

func TestAppendFailure(t *testing.T) {
	tr := &fakeTranscript{}
	sink := NewSink(tr, &fakeRegistry{}, &fakeWaiter{}, zaptest.NewLogger(t))

	r := report()
	r.Results = ""
	r.Error = "no capability providers available"
	require.NoError(t, sink.AppendFailure(context.Background(), r))

	require.Len(t, tr.appends, 1)
	content := tr.appends[0].entry.Content
	assert.True(t, strings.HasPrefix(content, FailurePrefix))
	assert.Contains(t, content, "no capability providers available")
	assert.Equal(t, "failed", tr.appends[0].entry.Metadata["status"])
}

func TestAppendAlreadyDeliveredIsNotAnError(t *testing.T) {
	sink := NewSink(&fakeTranscript{err: transcript.ErrAlreadyDelivered}, &fakeRegistry{}, &fakeWaiter{}, zaptest.NewLogger(t))
	assert.NoError(t, sink.AppendResult(context.Background(), report()))
}

func TestAppendPropagatesStoreErrors(t *testing.T) {
	sink := NewSink(&fakeTranscript{err: errors.New("redis down")}, &fakeRegistry{}, &fakeWaiter{}, zaptest.NewLogger(t))
	assert.Error(t, sink.AppendResult(context.Background(), report()))
}

func TestPostToTracker(t *testing.T) {
	comment := &fakeComment{}
	registry := &fakeRegistry{comment: comment}
	waiter := &fakeWaiter{result: readiness.Result{Ready: true}}
	sink := NewSink(&fakeTranscript{}, registry, waiter, zaptest.NewLogger(t))

	out := sink.PostToTracker(context.Background(), report(), TrackerConfig{Provider: "linear", MaxAttempts: 3})
	assert.Equal(t, OutcomePosted, out.Status)
	assert.Equal(t, "create_comment", out.Capability)

	assert.Equal(t, "linear", waiter.got.Provider)
	assert.Equal(t, 3, waiter.got.MaxAttempts)
	assert.Equal(t, "linear", registry.asked)
	assert.Equal(t, "LIN-42", comment.args["issueId"])
	body, _ := comment.args["body"].(string)
	assert.Contains(t, body, "**Repository:** acme/api")
	assert.Contains(t, body, "**Question:** How is auth handled?")
	assert.Contains(t, body, "## Relevant Files")
}

func TestPostToTrackerCustomArgs(t *testing.T) {
	comment := &fakeComment{}
	sink := NewSink(&fakeTranscript{}, &fakeRegistry{comment: comment}, &fakeWaiter{result: readiness.Result{Ready: true}}, zaptest.NewLogger(t))

	out := sink.PostToTracker(context.Background(), report(), TrackerConfig{Provider: "jira", TaskArg: "issue_key", BodyArg: "comment"})
	require.Equal(t, OutcomePosted, out.Status)
	assert.Equal(t, "LIN-42", comment.args["issue_key"])
	assert.NotEmpty(t, comment.args["comment"])
}

func TestPostToTrackerOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		report   func() Report
		waiter   *fakeWaiter
		registry *fakeRegistry
		want     OutcomeStatus
	}{
		{
			name:     "no task reference",
			report:   func() Report { r := report(); r.ExternalTaskID = ""; return r },
			waiter:   &fakeWaiter{result: readiness.Result{Ready: true}},
			registry: &fakeRegistry{comment: &fakeComment{}},
			want:     OutcomeSkipped,
		},
		{
			name:     "provider not ready",
			report:   report,
			waiter:   &fakeWaiter{result: readiness.Result{Reason: "provider linear not found"}},
			registry: &fakeRegistry{comment: &fakeComment{}},
			want:     OutcomeNotReady,
		},
		{
			name:     "no comment capability",
			report:   report,
			waiter:   &fakeWaiter{result: readiness.Result{Ready: true}},
			registry: &fakeRegistry{},
			want:     OutcomeNoCapability,
		},
		{
			name:     "invoke error",
			report:   report,
			waiter:   &fakeWaiter{result: readiness.Result{Ready: true}},
			registry: &fakeRegistry{comment: &fakeComment{err: errors.New("403 forbidden")}},
			want:     OutcomeFailed,
		},
		{
			name:     "tool error result",
			report:   report,
			waiter:   &fakeWaiter{result: readiness.Result{Ready: true}},
			registry: &fakeRegistry{comment: &fakeComment{res: capabilities.Result{Text: "issue not found", IsError: true}}},
			want:     OutcomeFailed,
		},
		{
			name:     "panic is swallowed",
			report:   report,
			waiter:   &fakeWaiter{result: readiness.Result{Ready: true}},
			registry: &fakeRegistry{comment: &fakeComment{panic: true}},
			want:     OutcomeFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewSink(&fakeTranscript{}, tt.registry, tt.waiter, zaptest.NewLogger(t))
			out := sink.PostToTracker(context.Background(), tt.report(), DefaultTrackerConfig())
			assert.Equal(t, tt.want, out.Status)
			if tt.want != OutcomeSkipped {
				assert.Equal(t, "linear", out.Provider)
			}
		})
	}
}
