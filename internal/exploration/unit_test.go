package exploration

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
)

type fakeCapability struct {
	name   string
	invoke func(args map[string]any) (capabilities.Result, error)

	mu    sync.Mutex
	calls []map[string]any
}

func (f *fakeCapability) Name() string     { return f.name }
func (f *fakeCapability) Provider() string { return "fake" }

func (f *fakeCapability) Invoke(ctx context.Context, args map[string]any) (capabilities.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return f.invoke(args)
}

type fakeFinder struct {
	caps []capabilities.Capability
}

func (f *fakeFinder) Find(provider string, match capabilities.Matcher) (capabilities.Capability, bool) {
	for _, c := range f.caps {
		if match(c.Name()) {
			return c, true
		}
	}
	return nil, false
}

func searchReturning(text string) *fakeCapability {
	return &fakeCapability{name: "search_code", invoke: func(map[string]any) (capabilities.Result, error) {
		return capabilities.Result{Text: text}, nil
	}}
}

func TestExploreNoSearchCapability(t *testing.T) {
	u := NewUnit(&fakeFinder{}, zaptest.NewLogger(t))

	exp := u.Explore(context.Background(), "acme/api", "auth - relevant files")
	assert.False(t, exp.Success)
	assert.Contains(t, exp.Error, "no code search capability")
	assert.Empty(t, exp.Files)
}

func TestExploreNoResults(t *testing.T) {
	search := searchReturning(`{"total_count":0,"items":[]}`)
	u := NewUnit(&fakeFinder{caps: []capabilities.Capability{search}}, zaptest.NewLogger(t))

	exp := u.Explore(context.Background(), "acme/api", "How is auth handled? - relevant files and directories")
	assert.True(t, exp.Success)
	assert.Empty(t, exp.Files)
	assert.NotNil(t, exp.Files)
	assert.Equal(t, "No relevant files found in acme/api for: How is auth handled? - relevant files and directories", exp.Summary)

	require.Len(t, search.calls, 1)
	assert.Equal(t, "auth handled relevant files directories repo:acme/api", search.calls[0]["query"])
}

func TestExploreReadsFirstThreeFiles(t *testing.T) {
	search := searchReturning(`{"items":[
		{"path":"auth/handler.go"},{"path":"auth/jwt.go"},{"path":"auth/handler.go"},
		{"path":"auth/session.go"},{"name":"README.md"}]}`)

	goSource := "package auth\n\nimport (\n\t\"net/http\"\n)\n\nfunc RequireUser(next http.Handler) http.Handler {\n\treturn next\n}\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(goSource))

	read := &fakeCapability{name: "get_file_contents", invoke: func(args map[string]any) (capabilities.Result, error) {
		switch args["path"] {
		case "auth/handler.go":
			return capabilities.Result{Text: `{"content":"` + encoded + `","encoding":"base64"}`}, nil
		case "auth/jwt.go":
			return capabilities.Result{}, errors.New("404 not found")
		default:
			return capabilities.Result{Text: "type Session struct {}"}, nil
		}
	}}

	u := NewUnit(&fakeFinder{caps: []capabilities.Capability{search, read}}, zaptest.NewLogger(t))
	exp := u.Explore(context.Background(), "acme/api", "session middleware")

	require.True(t, exp.Success, exp.Error)
	assert.Equal(t, []string{"auth/handler.go", "auth/jwt.go", "auth/session.go", "README.md"}, exp.Files)
	assert.Len(t, read.calls, 3)
	for _, call := range read.calls {
		assert.Equal(t, "acme", call["owner"])
		assert.Equal(t, "api", call["repo"])
	}

	assert.Contains(t, exp.Summary, "### auth/handler.go")
	assert.Contains(t, exp.Summary, "Imports: import (")
	assert.Contains(t, exp.Summary, "Declarations: func RequireUser(next http.Handler) http.Handler {")
	assert.Contains(t, exp.Summary, "### auth/session.go")
	assert.NotContains(t, exp.Summary, "### auth/jwt.go")
	assert.Contains(t, exp.Summary, "Also matched: auth/jwt.go, README.md")
}

func TestExploreWithoutReadCapabilityListsPaths(t *testing.T) {
	search := searchReturning(`[{"path":"a.go"},{"path":"b.go"}]`)
	u := NewUnit(&fakeFinder{caps: []capabilities.Capability{search}}, zaptest.NewLogger(t))

	exp := u.Explore(context.Background(), "acme/api", "routing")
	assert.True(t, exp.Success)
	assert.Equal(t, "Found 2 relevant file(s):\n- a.go\n- b.go", exp.Summary)
}

func TestExploreSearchFailure(t *testing.T) {
	search := &fakeCapability{name: "search", invoke: func(map[string]any) (capabilities.Result, error) {
		return capabilities.Result{}, errors.New("upstream timeout")
	}}
	u := NewUnit(&fakeFinder{caps: []capabilities.Capability{search}}, zaptest.NewLogger(t))

	exp := u.Explore(context.Background(), "acme/api", "routing")
	assert.False(t, exp.Success)
	assert.Contains(t, exp.Error, "upstream timeout")
}

func TestExploreSearchToolError(t *testing.T) {
	search := &fakeCapability{name: "search", invoke: func(map[string]any) (capabilities.Result, error) {
		return capabilities.Result{Text: "Validation Failed", IsError: true}, nil
	}}
	u := NewUnit(&fakeFinder{caps: []capabilities.Capability{search}}, zaptest.NewLogger(t))

	exp := u.Explore(context.Background(), "acme/api", "routing")
	assert.False(t, exp.Success)
	assert.Contains(t, exp.Error, "Validation Failed")
}

func TestExploreRecoversPanic(t *testing.T) {
	search := &fakeCapability{name: "search_code", invoke: func(map[string]any) (capabilities.Result, error) {
		panic("nil map write")
	}}
	u := NewUnit(&fakeFinder{caps: []capabilities.Capability{search}}, zaptest.NewLogger(t))

	exp := u.Explore(context.Background(), "acme/api", "routing")
	assert.False(t, exp.Success)
	assert.Equal(t, "routing", exp.SubQuestion)
	assert.Contains(t, exp.Error, "nil map write")
}

func TestExtractPaths(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"items path", `{"items":[{"path":"a"},{"path":"b"}]}`, []string{"a", "b"}},
		{"items name", `{"items":[{"name":"a"}]}`, []string{"a"}},
		{"array", `[{"path":"x"},{"name":"y"}]`, []string{"x", "y"}},
		{"single object", `{"path":"only.go"}`, []string{"only.go"}},
		{"dedupe", `[{"path":"x"},{"path":"x"}]`, []string{"x"}},
		{"not json", `found 3 matches`, nil},
		{"empty", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nilIfEmpty(ExtractPaths(tt.raw, MaxFiles)))
		})
	}
}

func TestExtractPathsLimit(t *testing.T) {
	var items []string
	for i := 0; i < 15; i++ {
		items = append(items, `{"path":"f`+strings.Repeat("x", i)+`"}`)
	}
	paths := ExtractPaths("["+strings.Join(items, ",")+"]", MaxFiles)
	assert.Len(t, paths, MaxFiles)
	assert.Equal(t, "f", paths[0])
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestDecodeContent(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello world"))
	assert.Equal(t, "hello world", DecodeContent(`{"content":"`+encoded+`","encoding":"base64"}`))
	assert.Equal(t, "plain", DecodeContent(`{"content":"plain"}`))
	assert.Equal(t, "raw text", DecodeContent("raw text"))
	assert.Equal(t, `{"sha":"abc"}`, DecodeContent(`{"sha":"abc"}`))
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "abc", truncate("abc", 10))
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "repo:acme/api", BuildQuery("what is the", "acme/api"))
	assert.Equal(t, "database migrations repo:acme/api", BuildQuery("Where are the database migrations?", "acme/api"))
}
