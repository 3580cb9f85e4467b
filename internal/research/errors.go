package research

import (
	"errors"
	"fmt"
)

// Workflow-level failure conditions. Each one ends a run in the failed state.
var (
	ErrProviderUnavailable   = errors.New("no capability providers available")
	ErrProviderNotReady      = errors.New("capability providers not ready")
	ErrAllExplorationsFailed = errors.New("all explorations failed")
	ErrInsufficientResult    = errors.New("insufficient research result")
)

// Kind classifies an error for metrics labels and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrProviderNotReady):
		return "provider_not_ready"
	case errors.Is(err, ErrAllExplorationsFailed):
		return "all_explorations_failed"
	case errors.Is(err, ErrInsufficientResult):
		return "insufficient_result"
	default:
		return "internal"
	}
}

// AllExplorationsFailed builds the error for a run with zero surviving explorations,
// carrying the first per-exploration error for context.
func AllExplorationsFailed(explorations []Exploration) error {
	for _, e := range explorations {
		if e.Error != "" {
			return fmt.Errorf("%w (%d attempted): %s", ErrAllExplorationsFailed, len(explorations), e.Error)
		}
	}
	return fmt.Errorf("%w (%d attempted)", ErrAllExplorationsFailed, len(explorations))
}

// InsufficientResult builds the error for a synthesis shorter than minLength.
func InsufficientResult(length, minLength int) error {
	return fmt.Errorf("%w: synthesis is %d characters, need at least %d", ErrInsufficientResult, length, minLength)
}
