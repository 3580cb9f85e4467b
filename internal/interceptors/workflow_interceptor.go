// Package interceptors stamps outgoing capability calls with the Temporal
// execution they belong to.
package interceptors

import (
	"context"
	"net/http"
	"strconv"

	"go.temporal.io/sdk/activity"

	"github.com/Kocoro-lab/repo-research/internal/tracing"
)

const (
	HeaderWorkflowID   = "X-Workflow-ID"
	HeaderRunID        = "X-Run-ID"
	HeaderActivityType = "X-Activity-Type"
	HeaderAttempt      = "X-Activity-Attempt"
)

// WorkflowHTTPRoundTripper adds workflow metadata and the W3C traceparent to
// outgoing HTTP requests.
type WorkflowHTTPRoundTripper struct {
	base http.RoundTripper
}

func NewWorkflowHTTPRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &WorkflowHTTPRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// headers are added.
func (w *WorkflowHTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	info, ok := activityInfo(ctx)
	traceparent := tracing.W3CTraceparent(ctx)
	if !ok && traceparent == "" {
		return w.base.RoundTrip(req)
	}

	out := req.Clone(ctx)
	if ok {
		out.Header.Set(HeaderWorkflowID, info.WorkflowExecution.ID)
		out.Header.Set(HeaderRunID, info.WorkflowExecution.RunID)
		out.Header.Set(HeaderActivityType, info.ActivityType.Name)
		out.Header.Set(HeaderAttempt, strconv.Itoa(int(info.Attempt)))
	}
	if traceparent != "" {
		out.Header.Set("traceparent", traceparent)
	}
	return w.base.RoundTrip(out)
}

// activityInfo returns the activity info carried by ctx. activity.GetInfo
// panics outside an activity, e.g. during provider discovery.
func activityInfo(ctx context.Context) (info activity.Info, ok bool) {
	if !activity.IsActivity(ctx) {
		return activity.Info{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	info = activity.GetInfo(ctx)
	return info, info.WorkflowExecution.ID != ""
}
