package readiness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
)

// scriptedRegistry returns successive snapshots, repeating the last one.
type scriptedRegistry struct {
	mu     sync.Mutex
	frames [][]capabilities.ProviderStatus
	polls  int
}

func (s *scriptedRegistry) Snapshot() []capabilities.ProviderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	if i >= len(s.frames) {
		i = len(s.frames) - 1
	}
	s.polls++
	if i < 0 {
		return nil
	}
	return s.frames[i]
}

func newTestGate(reg capabilities.Snapshotter) (*Gate, *[]time.Duration) {
	var slept []time.Duration
	g := NewGate(reg)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return g, &slept
}

func status(id string, state capabilities.State) capabilities.ProviderStatus {
	return capabilities.ProviderStatus{ID: id, Name: id, State: state}
}

func TestWaitAnyReadyImmediately(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{
		{status("a", capabilities.StateConnecting), status("b", capabilities.StateReady)},
	}}
	g, slept := newTestGate(reg)

	res := g.Wait(context.Background(), Config{MaxAttempts: 5, Interval: time.Second})
	assert.True(t, res.Ready)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 2, res.ProviderCount)
	assert.Empty(t, *slept)
}

func TestWaitBecomesReady(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{
		{status("a", capabilities.StateConnecting)},
		{status("a", capabilities.StateDiscovering)},
		{status("a", capabilities.StateReady)},
	}}
	g, slept := newTestGate(reg)

	res := g.Wait(context.Background(), Config{MaxAttempts: 10, Interval: 50 * time.Millisecond})
	assert.True(t, res.Ready)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, *slept)
}

func TestWaitNoProviders(t *testing.T) {
	g, slept := newTestGate(&scriptedRegistry{frames: [][]capabilities.ProviderStatus{{}}})

	res := g.Wait(context.Background(), Config{MaxAttempts: 3, Interval: time.Second})
	assert.False(t, res.Ready)
	assert.Equal(t, 0, res.ProviderCount)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "no capability providers registered", res.Reason)
	assert.Len(t, *slept, 2)
}

func TestWaitTimesOutWithLastState(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{
		{status("github", capabilities.StateAuthenticating)},
	}}
	g, _ := newTestGate(reg)

	res := g.Wait(context.Background(), Config{MaxAttempts: 4, Interval: time.Second})
	assert.False(t, res.Ready)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 1, res.ProviderCount)
	assert.Equal(t, capabilities.StateAuthenticating, res.LastState)
	assert.Contains(t, res.Reason, "after 4 attempts, last state=authenticating")
}

func TestWaitNamedProvider(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{
		{status("github", capabilities.StateReady), {ID: "linear-mcp", Name: "Linear", State: capabilities.StateConnecting}},
		{status("github", capabilities.StateReady), {ID: "linear-mcp", Name: "Linear", State: capabilities.StateReady}},
	}}
	g, _ := newTestGate(reg)

	res := g.Wait(context.Background(), Config{Provider: "linear", MaxAttempts: 5, Interval: time.Second})
	assert.True(t, res.Ready)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, capabilities.StateReady, res.LastState)
}

func TestWaitNamedProviderFailed(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{
		{status("github", capabilities.StateReady), {ID: "linear", Name: "linear", State: capabilities.StateFailed, Error: "401 unauthorized"}},
	}}
	g, _ := newTestGate(reg)

	res := g.Wait(context.Background(), Config{Provider: "linear", MaxAttempts: 2, Interval: time.Second})
	assert.False(t, res.Ready)
	assert.Equal(t, capabilities.StateFailed, res.LastState)
	assert.Contains(t, res.Reason, "401 unauthorized")
	assert.Contains(t, res.Reason, "last state=failed")
}

func TestWaitNamedProviderNotFound(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{{status("github", capabilities.StateReady)}}}
	g, _ := newTestGate(reg)

	res := g.Wait(context.Background(), Config{Provider: "jira", MaxAttempts: 2, Interval: time.Second})
	assert.False(t, res.Ready)
	assert.Equal(t, 1, res.ProviderCount)
	assert.Equal(t, "provider jira not found", res.Reason)
}

func TestWaitCancelled(t *testing.T) {
	reg := &scriptedRegistry{frames: [][]capabilities.ProviderStatus{{status("a", capabilities.StateConnecting)}}}
	g, _ := newTestGate(reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := g.Wait(ctx, Config{MaxAttempts: 30, Interval: time.Second})
	assert.False(t, res.Ready)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Reason, "wait cancelled")
}

func TestWaitDefaults(t *testing.T) {
	g, slept := newTestGate(&scriptedRegistry{frames: [][]capabilities.ProviderStatus{{}}})

	res := g.Wait(context.Background(), Config{})
	assert.Equal(t, DefaultMaxAttempts, res.Attempts)
	assert.Len(t, *slept, DefaultMaxAttempts-1)
	assert.Equal(t, DefaultInterval, (*slept)[0])
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
