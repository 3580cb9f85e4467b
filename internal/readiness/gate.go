// Package readiness polls a capability registry until providers report ready.
package readiness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
)

// Defaults for a readiness wait.
const (
	DefaultMaxAttempts = 30
	DefaultInterval    = time.Second
)

// Config bounds a readiness wait.
type Config struct {
	// Provider names a specific provider by id or name. Empty waits for any.
	Provider    string
	MaxAttempts int
	Interval    time.Duration
}

// Result reports the outcome of a wait. A timeout is a result, never an error.
type Result struct {
	Ready         bool               `json:"ready"`
	Reason        string             `json:"reason,omitempty"`
	Attempts      int                `json:"attempts"`
	ProviderCount int                `json:"provider_count"`
	LastState     capabilities.State `json:"last_state,omitempty"`
}

// Gate waits on a registry snapshot.
type Gate struct {
	registry capabilities.Snapshotter
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGate returns a gate that polls registry.
func NewGate(registry capabilities.Snapshotter) *Gate {
	return &Gate{registry: registry, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait polls up to MaxAttempts times, sleeping Interval between polls.
// Context cancellation ends the wait early with the last observation.
func (g *Gate) Wait(ctx context.Context, cfg Config) Result {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	var res Result
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res = g.check(cfg.Provider)
		res.Attempts = attempt
		if res.Ready {
			return res
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if err := g.sleep(ctx, cfg.Interval); err != nil {
			res.Reason = fmt.Sprintf("%s (wait cancelled: %v)", res.Reason, err)
			return res
		}
	}

	if res.ProviderCount > 0 && res.LastState != "" {
		res.Reason = fmt.Sprintf("%s after %d attempts, last state=%s", res.Reason, res.Attempts, res.LastState)
	}
	return res
}

func (g *Gate) check(provider string) Result {
	snap := g.registry.Snapshot()
	res := Result{ProviderCount: len(snap)}
	if len(snap) == 0 {
		res.Reason = "no capability providers registered"
		return res
	}

	if provider == "" {
		states := make([]string, 0, len(snap))
		for _, s := range snap {
			if s.State == capabilities.StateReady {
				res.Ready = true
				res.LastState = s.State
				return res
			}
			states = append(states, fmt.Sprintf("%s=%s", s.ID, s.State))
		}
		res.LastState = snap[len(snap)-1].State
		res.Reason = "no provider ready (" + strings.Join(states, ", ") + ")"
		return res
	}

	for _, s := range snap {
		if !capabilities.SameProvider(provider, s) {
			continue
		}
		res.LastState = s.State
		if s.State == capabilities.StateReady {
			res.Ready = true
			return res
		}
		res.Reason = fmt.Sprintf("provider %s not ready", provider)
		if s.Error != "" {
			res.Reason += ": " + s.Error
		}
		return res
	}
	res.Reason = fmt.Sprintf("provider %s not found", provider)
	return res
}
