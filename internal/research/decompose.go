package research

import "fmt"

// Sub-question templates. The question leads each template so keyword
// extraction picks up the user's terms before the template's own words.
var (
	coreTemplates = []string{
		"%s - relevant files and directories",
		"%s - current implementation and patterns used",
	}
	mediumTemplates = []string{
		"%s - dependencies and libraries involved",
		"%s - tests and documentation covering it",
	}
	thoroughTemplates = []string{
		"%s - historical context and recent changes",
		"%s - open issues and TODO comments",
	}
)

// Decompose expands a question into depth-dependent sub-questions.
// quick yields 2, medium 4 and thorough 6; each depth is a prefix of the next.
// An unknown depth is treated as quick.
func Decompose(question string, depth Depth) []string {
	templates := append([]string{}, coreTemplates...)
	switch depth {
	case DepthMedium:
		templates = append(templates, mediumTemplates...)
	case DepthThorough:
		templates = append(templates, mediumTemplates...)
		templates = append(templates, thoroughTemplates...)
	}

	subQuestions := make([]string, len(templates))
	for i, tmpl := range templates {
		subQuestions[i] = fmt.Sprintf(tmpl, question)
	}
	return subQuestions
}
