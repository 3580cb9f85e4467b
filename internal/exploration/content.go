package exploration

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractPaths pulls up to limit distinct file paths out of a search response.
// Accepted shapes: {"items":[{"path"|"name"}]}, a bare array of such objects,
// or one object.
func ExtractPaths(raw string, limit int) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil
	}

	doc := gjson.Parse(raw)
	var entries []gjson.Result
	switch {
	case doc.IsArray():
		entries = doc.Array()
	case doc.Get("items").IsArray():
		entries = doc.Get("items").Array()
	case doc.IsObject():
		entries = []gjson.Result{doc}
	}

	seen := make(map[string]struct{}, len(entries))
	paths := make([]string, 0, limit)
	for _, e := range entries {
		p := e.Get("path").String()
		if p == "" {
			p = e.Get("name").String()
		}
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
		if len(paths) == limit {
			break
		}
	}
	return paths
}

// DecodeContent unwraps {"content": ..., "encoding": "base64"} payloads.
// Anything else is returned unchanged.
func DecodeContent(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return raw
	}
	doc := gjson.Parse(trimmed)
	content := doc.Get("content")
	if !content.Exists() {
		return raw
	}
	if strings.EqualFold(doc.Get("encoding").String(), "base64") {
		decoded, err := base64.StdEncoding.DecodeString(stripWhitespace(content.String()))
		if err != nil {
			return content.String()
		}
		return string(decoded)
	}
	return content.String()
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
}

var (
	importLine = regexp.MustCompile(`^\s*(import\b|from\s+\S+\s+import\b|require\(|.*\brequire\s*\(|#include\b|use\s+\S+;|using\s+\S+;)`)
	declLine   = regexp.MustCompile(`^\s*(export\s+)?(async\s+)?(func|function|class|interface|type|struct|enum|def|fn|const|let|var|public|private|protected|module|trait|impl)\b`)
)

const (
	maxImportLines = 2
	maxDeclLines   = 3
	maxDeclChars   = 60
	previewChars   = 200
)

// Summarize renders what was learned from the read files, or lists the found
// paths when nothing could be read.
func Summarize(paths []string, contents []fileContent) string {
	var b strings.Builder
	if len(contents) == 0 {
		fmt.Fprintf(&b, "Found %d relevant file(s):\n", len(paths))
		for i, p := range paths {
			if i == MaxFiles {
				break
			}
			fmt.Fprintf(&b, "- %s\n", p)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	for i, c := range contents {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n", c.path)
		imports, decls := signals(c.text)
		if len(imports) > 0 {
			fmt.Fprintf(&b, "Imports: %s\n", strings.Join(imports, "; "))
		}
		if len(decls) > 0 {
			fmt.Fprintf(&b, "Declarations: %s\n", strings.Join(decls, "; "))
		}
		fmt.Fprintf(&b, "Preview:\n```\n%s\n```\n", truncate(strings.TrimSpace(c.text), previewChars))
	}
	if len(paths) > len(contents) {
		fmt.Fprintf(&b, "\nAlso matched: %s\n", strings.Join(unread(paths, contents), ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func signals(text string) (imports, decls []string) {
	for _, line := range strings.Split(text, "\n") {
		if len(imports) == maxImportLines && len(decls) == maxDeclLines {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		switch {
		case importLine.MatchString(trimmed):
			if len(imports) < maxImportLines {
				imports = append(imports, trimmed)
			}
		case declLine.MatchString(trimmed):
			if len(decls) < maxDeclLines {
				decls = append(decls, truncate(trimmed, maxDeclChars))
			}
		}
	}
	return imports, decls
}

func unread(paths []string, contents []fileContent) []string {
	read := make(map[string]struct{}, len(contents))
	for _, c := range contents {
		read[c.path] = struct{}{}
	}
	var out []string
	for _, p := range paths {
		if _, ok := read[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
