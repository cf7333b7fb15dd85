package grading

import "strings"

// KeyTerms extracts the tokens of an expected finding used for loose
// matching: whitespace-split tokens longer than three characters after
// trimming surrounding punctuation, lowercased. The length cutoff filters
// articles and prepositions without needing a stop-word list.
func KeyTerms(finding string) []string {
	var terms []string
	for _, tok := range strings.Fields(finding) {
		tok = strings.Trim(tok, ".,;:!?()[]{}\"'")
		if len([]rune(tok)) > 3 {
			terms = append(terms, strings.ToLower(tok))
		}
	}
	return terms
}

// MatchFindings reports, for each expected finding, whether the learner's
// text mentions it. A finding matches when any of its key terms appears as
// a case-insensitive substring of the text. A finding whose tokens are all
// three characters or shorter yields no key terms and can never match;
// case authors are expected to phrase findings with at least one
// substantive word.
//
// Pure function: identical inputs always yield identical output.
func MatchFindings(text string, findings []string) []bool {
	lower := strings.ToLower(text)
	matches := make([]bool, len(findings))
	for i, f := range findings {
		for _, term := range KeyTerms(f) {
			if strings.Contains(lower, term) {
				matches[i] = true
				break
			}
		}
	}
	return matches
}
