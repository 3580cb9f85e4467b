// Package capabilities exposes remote capability providers (MCP servers) as a
// registry that can be polled for readiness and searched for named tools.
package capabilities

import (
	"context"
	"regexp"
	"strings"
)

// State is the connection lifecycle of a capability provider.
type State string

const (
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateDiscovering    State = "discovering"
	StateReady          State = "ready"
	StateFailed         State = "failed"
)

// ProviderStatus is one entry of a registry snapshot.
type ProviderStatus struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	State State    `json:"state"`
	Error string   `json:"error,omitempty"`
	Tools []string `json:"tools,omitempty"`
}

// Result is the normalized output of a capability invocation.
type Result struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error,omitempty"`
}

// Capability is a named, remotely invoked operation.
type Capability interface {
	Name() string
	Provider() string
	Invoke(ctx context.Context, args map[string]any) (Result, error)
}

// Matcher selects tools by name.
type Matcher func(toolName string) bool

// Snapshotter reports the current state of every registered provider.
type Snapshotter interface {
	Snapshot() []ProviderStatus
}

// Registry is the consumed view of capability providers.
type Registry interface {
	Snapshotter
	// Find returns the first tool accepted by match on a ready provider.
	// An empty provider searches all ready providers.
	Find(provider string, match Matcher) (Capability, bool)
}

// MatchPattern builds a case-insensitive Matcher from a regular expression.
func MatchPattern(pattern string) Matcher {
	re := regexp.MustCompile("(?i)" + pattern)
	return func(name string) bool { return re.MatchString(name) }
}

// Tool name patterns for the capabilities the research engine uses.
var (
	SearchCode    = MatchPattern(`^(search_code|code_search|search)$`)
	ReadFile      = MatchPattern(`^(get_file_contents|read_file|get_file)$`)
	CreateComment = MatchPattern(`^((create|add|save)_?(issue_)?comment|comment_create)$`)
)

// SameProvider compares a requested provider reference against a status entry
// by id or name, ignoring case.
func SameProvider(ref string, status ProviderStatus) bool {
	return strings.EqualFold(ref, status.ID) || strings.EqualFold(ref, status.Name)
}
