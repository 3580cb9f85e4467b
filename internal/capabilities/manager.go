package capabilities

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/repo-research/internal/circuitbreaker"
)

const (
	clientName    = "repo-research"
	clientVersion = "1.0.0"
)

// Manager owns the sessions to every configured provider and implements Registry.
type Manager struct {
	logger *zap.Logger
	dial   Dialer

	mu        sync.RWMutex
	providers []*provider
	wg        sync.WaitGroup
}

type provider struct {
	cfg     ProviderConfig
	breaker *circuitbreaker.CircuitBreaker
	limiter *rate.Limiter

	mu      sync.RWMutex
	state   State
	err     string
	tools   []string
	session Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the default MCP dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// NewManager registers providers in the connecting state. Call Start to dial them.
func NewManager(configs []ProviderConfig, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{logger: logger, dial: DialMCP}
	for _, opt := range opts {
		opt(m)
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			cfg.Name = cfg.ID
		}
		p := &provider{
			cfg:     cfg,
			state:   StateConnecting,
			breaker: circuitbreaker.NewCircuitBreaker("capability:"+cfg.ID, circuitbreaker.Instrument(circuitbreaker.CapabilityConfig()), logger),
		}
		if cfg.RatePerSecond > 0 {
			burst := cfg.Burst
			if burst <= 0 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
		}
		m.providers = append(m.providers, p)
	}
	return m
}

// Start connects every provider in the background. Readiness is observed
// through Snapshot.
func (m *Manager) Start(ctx context.Context) {
	m.mu.RLock()
	providers := append([]*provider(nil), m.providers...)
	m.mu.RUnlock()

	for _, p := range providers {
		m.wg.Add(1)
		go func(p *provider) {
			defer m.wg.Done()
			m.connect(ctx, p)
		}(p)
	}
}

// Wait blocks until every connection attempt started by Start has settled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) connect(ctx context.Context, p *provider) {
	logger := m.logger.With(zap.String("provider", p.cfg.ID))
	p.setState(StateConnecting, "", nil)

	session, err := m.dial(ctx, p.cfg)
	if err != nil {
		logger.Warn("Capability provider connection failed", zap.Error(err))
		p.setState(StateFailed, err.Error(), nil)
		return
	}

	if p.cfg.BearerToken != "" {
		p.setState(StateAuthenticating, "", nil)
	}
	if _, err := session.Initialize(ctx, initializeRequest(clientName, clientVersion)); err != nil {
		_ = session.Close()
		logger.Warn("Capability provider initialize failed", zap.Error(err))
		p.setState(StateFailed, fmt.Sprintf("initialize: %v", err), nil)
		return
	}

	p.setState(StateDiscovering, "", nil)
	listed, err := session.ListTools(ctx, listToolsRequest())
	if err != nil {
		_ = session.Close()
		logger.Warn("Capability provider tool discovery failed", zap.Error(err))
		p.setState(StateFailed, fmt.Sprintf("list tools: %v", err), nil)
		return
	}

	tools := make([]string, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		tools = append(tools, t.Name)
	}

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	p.setState(StateReady, "", tools)
	logger.Info("Capability provider ready", zap.Int("tools", len(tools)))
}

// Snapshot reports providers in configuration order.
func (m *Manager) Snapshot() []ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p.status())
	}
	return out
}

// Find returns the first matching tool on a ready provider.
func (m *Manager) Find(ref string, match Matcher) (Capability, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.providers {
		status := p.status()
		if status.State != StateReady {
			continue
		}
		if ref != "" && !SameProvider(ref, status) {
			continue
		}
		for _, tool := range status.Tools {
			if match(tool) {
				return &capability{provider: p, name: tool}, true
			}
		}
	}
	return nil, false
}

// Close terminates every open session.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, p := range m.providers {
		p.mu.Lock()
		if p.session != nil {
			if err := p.session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("provider %s: %w", p.cfg.ID, err))
			}
			p.session = nil
		}
		p.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (p *provider) setState(state State, errMsg string, tools []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.err = errMsg
	if tools != nil {
		p.tools = tools
	}
}

func (p *provider) status() ProviderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProviderStatus{
		ID:    p.cfg.ID,
		Name:  p.cfg.Name,
		State: p.state,
		Error: p.err,
		Tools: append([]string(nil), p.tools...),
	}
}

type capability struct {
	provider *provider
	name     string
}

func (c *capability) Name() string     { return c.name }
func (c *capability) Provider() string { return c.provider.cfg.ID }

// Invoke calls the tool through the provider's rate limiter and circuit breaker.
func (c *capability) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	p := c.provider
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("rate limit %s: %w", p.cfg.ID, err)
		}
	}

	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()
	if session == nil {
		return Result{}, fmt.Errorf("provider %s has no open session", p.cfg.ID)
	}

	var result Result
	err := p.breaker.Execute(ctx, func() error {
		res, err := session.CallTool(ctx, callToolRequest(c.name, args))
		if err != nil {
			return err
		}
		result = toResult(res)
		return nil
	})
	circuitbreaker.RecordRequest(p.breaker.Name(), err)
	if err != nil {
		return Result{}, fmt.Errorf("call %s on %s: %w", c.name, p.cfg.ID, err)
	}
	return result, nil
}
