package research

import (
	"fmt"
	"strings"
)

// RelevantFilesHeading titles the trailing file list in a synthesis.
const RelevantFilesHeading = "## Relevant Files"

// Synthesize merges successful explorations into one markdown document.
// The header always names the question; the file section appears only when
// at least one exploration found files.
func Synthesize(question string, explorations []Exploration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research: %s\n", question)

	seen := make(map[string]struct{})
	var files []string
	for _, e := range explorations {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", e.SubQuestion, strings.TrimSpace(e.Summary))
		for _, f := range e.Files {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			files = append(files, f)
		}
	}

	if len(files) > 0 {
		fmt.Fprintf(&b, "\n%s\n\n", RelevantFilesHeading)
		for _, f := range files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}
