package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{checkers: make(map[string]Checker), logger: logger}
}

// RegisterChecker adds a checker; names must be unique.
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[checker.Name()]; exists {
		return fmt.Errorf("health checker %q already registered", checker.Name())
	}
	m.checkers[checker.Name()] = checker
	m.logger.Debug("Registered health checker",
		zap.String("name", checker.Name()),
		zap.Bool("critical", checker.IsCritical()),
	)
	return nil
}

// Check runs every checker concurrently, each bounded by its own timeout.
// The service is ready unless a critical checker is unhealthy.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.runSingleCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Components: make(map[string]CheckResult, len(results)),
		Timestamp:  time.Now(),
	}
	for _, r := range results {
		report.Components[r.Component] = r
		switch {
		case r.Status == StatusUnhealthy && r.Critical:
			report.Status = StatusUnhealthy
			report.Ready = false
		case r.Status != StatusHealthy && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (m *Manager) runSingleCheck(ctx context.Context, checker Checker) (result CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, checker.Timeout())
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("panic: %v", r)}
		}
		result.Component = checker.Name()
		result.Critical = checker.IsCritical()
		result.Duration = time.Since(start)
		if result.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("component", result.Component),
				zap.String("status", result.Status.String()),
				zap.String("error", result.Error),
			)
		}
	}()
	return checker.Check(ctx)
}
