// Package exploration investigates one sub-question against a repository by
// searching, reading a few of the matches and summarizing what was read.
package exploration

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
	"github.com/Kocoro-lab/repo-research/internal/research"
	"github.com/Kocoro-lab/repo-research/internal/tracing"
)

const (
	MaxFiles        = 10
	MaxReads        = 3
	MaxContentChars = 2000
)

// Finder is the capability lookup an exploration needs.
type Finder interface {
	Find(provider string, match capabilities.Matcher) (capabilities.Capability, bool)
}

// Unit explores sub-questions through the capabilities found in a registry.
type Unit struct {
	finder Finder
	logger *zap.Logger
}

// NewUnit creates an exploration unit.
func NewUnit(finder Finder, logger *zap.Logger) *Unit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Unit{finder: finder, logger: logger}
}

// Explore never returns an error; failures are reported on the Exploration.
func (u *Unit) Explore(ctx context.Context, repository, subQuestion string) (exp research.Exploration) {
	ctx, span := tracing.StartSpan(ctx, "exploration.explore")
	span.SetAttributes(
		attribute.String("research.repository", repository),
		attribute.String("research.sub_question", subQuestion),
	)
	defer span.End()

	exp = research.Exploration{SubQuestion: subQuestion, Files: []string{}}
	defer func() {
		if r := recover(); r != nil {
			exp = failed(subQuestion, fmt.Errorf("exploration panicked: %v", r))
		}
		if !exp.Success {
			span.SetStatus(codes.Error, exp.Error)
		}
		span.SetAttributes(attribute.Int("research.files", len(exp.Files)))
	}()

	search, ok := u.finder.Find("", capabilities.SearchCode)
	if !ok {
		return failed(subQuestion, fmt.Errorf("no code search capability available"))
	}

	query := BuildQuery(subQuestion, repository)
	res, err := search.Invoke(ctx, map[string]any{"query": query})
	if err != nil {
		return failed(subQuestion, fmt.Errorf("search %q: %w", query, err))
	}
	if res.IsError {
		return failed(subQuestion, fmt.Errorf("search %q: %s", query, truncate(res.Text, 200)))
	}

	paths := ExtractPaths(res.Text, MaxFiles)
	if len(paths) == 0 {
		exp.Success = true
		exp.Summary = fmt.Sprintf("No relevant files found in %s for: %s", repository, subQuestion)
		return exp
	}

	var contents []fileContent
	if read, ok := u.finder.Find("", capabilities.ReadFile); ok {
		contents = u.readFiles(ctx, read, repository, paths)
	}

	exp.Success = true
	exp.Files = paths
	exp.Summary = Summarize(paths, contents)
	return exp
}

func failed(subQuestion string, err error) research.Exploration {
	return research.Exploration{SubQuestion: subQuestion, Files: []string{}, Error: err.Error()}
}

type fileContent struct {
	path string
	text string
}

// readFiles reads the first MaxReads paths concurrently. Failed reads are dropped.
func (u *Unit) readFiles(ctx context.Context, read capabilities.Capability, repository string, paths []string) []fileContent {
	if len(paths) > MaxReads {
		paths = paths[:MaxReads]
	}
	owner, repo := splitRepository(repository)
	results := make([]*fileContent, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxReads)
	for i, path := range paths {
		g.Go(func() error {
			res, err := read.Invoke(gctx, map[string]any{"owner": owner, "repo": repo, "path": path})
			if err != nil || res.IsError {
				u.logger.Debug("File read dropped", zap.String("path", path), zap.Error(err))
				return nil
			}
			results[i] = &fileContent{path: path, text: truncate(DecodeContent(res.Text), MaxContentChars)}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]fileContent, 0, len(results))
	for _, r := range results {
		if r != nil && r.text != "" {
			out = append(out, *r)
		}
	}
	return out
}

// BuildQuery joins the sub-question keywords and scopes them to the repository.
func BuildQuery(subQuestion, repository string) string {
	keywords := research.ExtractKeywords(subQuestion)
	q := strings.Join(keywords, " ")
	scope := "repo:" + repository
	if q == "" {
		return scope
	}
	return q + " " + scope
}

func splitRepository(repository string) (string, string) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok {
		return "", repository
	}
	return owner, repo
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
