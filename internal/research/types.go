package research

import (
	"fmt"
	"strings"
)

// Depth controls how many sub-questions a research question decomposes into.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthMedium   Depth = "medium"
	DepthThorough Depth = "thorough"
)

// ParseDepth normalizes a depth string. Empty input defaults to medium.
func ParseDepth(s string) (Depth, error) {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DepthMedium, nil
	case DepthQuick:
		return DepthQuick, nil
	case DepthMedium:
		return DepthMedium, nil
	case DepthThorough:
		return DepthThorough, nil
	default:
		return "", fmt.Errorf("invalid depth %q: must be one of quick, medium, thorough", s)
	}
}

// Status is the lifecycle state of a research workflow.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo enforces pending -> in_progress -> {completed|failed}.
// A pending workflow may also fail directly when it could not be scheduled.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Exploration is the outcome of investigating one sub-question.
// It lives only for the duration of a workflow run.
type Exploration struct {
	SubQuestion string   `json:"sub_question"`
	Success     bool     `json:"success"`
	Summary     string   `json:"summary"`
	Files       []string `json:"files"`
	Error       string   `json:"error,omitempty"`
}

// Successful filters explorations down to the ones that succeeded, preserving order.
func Successful(explorations []Exploration) []Exploration {
	out := make([]Exploration, 0, len(explorations))
	for _, e := range explorations {
		if e.Success {
			out = append(out, e)
		}
	}
	return out
}
