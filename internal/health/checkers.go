package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
)

// Pinger is satisfied by db.Client and transcript.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// slowPing marks a responsive dependency as degraded
const slowPing = 100 * time.Millisecond

// PingChecker checks a dependency that answers Ping
type PingChecker struct {
	name     string
	pinger   Pinger
	critical bool
	timeout  time.Duration
}

// NewDatabaseHealthChecker checks the workflow store
func NewDatabaseHealthChecker(p Pinger) *PingChecker {
	return &PingChecker{name: "database", pinger: p, critical: true, timeout: 5 * time.Second}
}

// NewRedisHealthChecker checks the transcript store
func NewRedisHealthChecker(p Pinger) *PingChecker {
	return &PingChecker{name: "redis", pinger: p, critical: true, timeout: 5 * time.Second}
}

func (c *PingChecker) Name() string           { return c.name }
func (c *PingChecker) IsCritical() bool       { return c.critical }
func (c *PingChecker) Timeout() time.Duration { return c.timeout }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.pinger.Ping(ctx)
	latency := time.Since(start)

	result := CheckResult{Details: map[string]interface{}{"latency_ms": latency.Milliseconds()}}
	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = c.name + " ping failed"
	case latency > slowPing:
		result.Status = StatusDegraded
		result.Message = c.name + " responding with high latency"
	default:
		result.Status = StatusHealthy
		result.Message = c.name + " healthy"
	}
	return result
}

// ProviderChecker reports capability provider states. It is not critical:
// workflows wait on the readiness gate themselves.
type ProviderChecker struct {
	registry capabilities.Snapshotter
}

func NewProviderHealthChecker(registry capabilities.Snapshotter) *ProviderChecker {
	return &ProviderChecker{registry: registry}
}

func (c *ProviderChecker) Name() string           { return "capability_providers" }
func (c *ProviderChecker) IsCritical() bool       { return false }
func (c *ProviderChecker) Timeout() time.Duration { return time.Second }

func (c *ProviderChecker) Check(ctx context.Context) CheckResult {
	snapshot := c.registry.Snapshot()
	states := make(map[string]interface{}, len(snapshot))
	ready := 0
	var failed []string
	for _, p := range snapshot {
		states[p.ID] = string(p.State)
		switch p.State {
		case capabilities.StateReady:
			ready++
		case capabilities.StateFailed:
			failed = append(failed, p.ID)
		}
	}

	result := CheckResult{Details: states}
	switch {
	case len(snapshot) == 0:
		result.Status = StatusUnhealthy
		result.Message = "no capability providers registered"
	case ready == 0:
		result.Status = StatusUnhealthy
		result.Message = "no capability provider ready"
	case ready < len(snapshot):
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d of %d capability providers ready", ready, len(snapshot))
	default:
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("%d capability providers ready", ready)
	}
	if len(failed) > 0 {
		result.Error = "failed: " + strings.Join(failed, ", ")
	}
	return result
}
