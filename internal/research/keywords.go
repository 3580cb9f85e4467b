package research

import "strings"

// MaxKeywords is the upper bound on tokens returned by ExtractKeywords.
const MaxKeywords = 5

var keywordStripper = strings.NewReplacer(
	"?", "", ":", "", ",", "", ".", "",
	"(", "", ")", "", "[", "", "]", "", "{", "", "}", "",
)

var stopWords = map[string]struct{}{
	// articles and determiners
	"the": {}, "an": {}, "this": {}, "that": {}, "these": {}, "those": {},
	// wh-words
	"what": {}, "which": {}, "who": {}, "whom": {}, "whose": {},
	"when": {}, "where": {}, "why": {}, "how": {},
	// auxiliaries and conjunctions that carry no search signal
	"are": {}, "was": {}, "were": {}, "does": {}, "did": {}, "and": {},
	// prepositions
	"for": {}, "with": {}, "from": {}, "into": {}, "onto": {}, "over": {},
	"under": {}, "upon": {}, "between": {}, "through": {}, "across": {},
	"within": {}, "without": {}, "after": {}, "before": {}, "during": {},
	"about": {}, "related": {},
}

// ExtractKeywords lowercases text, strips punctuation, drops short tokens
// and stop words, and keeps the first MaxKeywords survivors in order.
func ExtractKeywords(text string) []string {
	cleaned := keywordStripper.Replace(strings.ToLower(text))

	keywords := make([]string, 0, MaxKeywords)
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		keywords = append(keywords, tok)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

// IsStopWord reports whether token is filtered by ExtractKeywords.
func IsStopWord(token string) bool {
	_, ok := stopWords[strings.ToLower(token)]
	return ok
}
