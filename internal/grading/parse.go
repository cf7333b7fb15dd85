package grading

import (
	"regexp"
	"strconv"
	"strings"
)

// Source tags how an EvaluationResult's score was produced, so callers can
// tell a clean parse from a degraded one.
type Source string

const (
	// SourceLLM means the score was parsed from the generation service's reply.
	SourceLLM Source = "llm"
	// SourceFallback means the score was recomputed deterministically from
	// finding matches because the reply was absent or malformed.
	SourceFallback Source = "fallback"
)

// EvaluationResult is the structured outcome of grading one attempt.
type EvaluationResult struct {
	Feedback     string `json:"feedback"`
	Score        int    `json:"score"`
	ShowExpected bool   `json:"show_expected"`
	ClueGiven    bool   `json:"clue_given"`
	Source       Source `json:"source"`
}

// FallbackContext carries what the parser needs to recompute a
// deterministic score when the reply lacks a usable SCORE line.
type FallbackContext struct {
	ExpectedFindings []string
	AttemptNumber    int // 1 or 2
	FirstAttempt     string
	SecondAttempt    string // empty on attempt 1
}

func (f FallbackContext) score() int {
	first := MatchFindings(f.FirstAttempt, f.ExpectedFindings)
	if f.AttemptNumber >= 2 {
		return CumulativeScore(first, MatchFindings(f.SecondAttempt, f.ExpectedFindings))
	}
	return FirstAttemptScore(first)
}

// Label-anchored extraction; each label captures up to the next label or
// end of string. Mirrors the trailer contract in prompt.go.
var (
	feedbackRegex = regexp.MustCompile(`(?is)FEEDBACK:\s*(.*?)\s*(?:SCORE:|CLUE_GIVEN:|SHOW_EXPECTED:|$)`)
	scoreRegex    = regexp.MustCompile(`(?i)SCORE:\s*(\d+)`)
)

// ParseResponse extracts an EvaluationResult from the generation service's
// raw reply. A missing or unparseable SCORE falls back to the deterministic
// matcher-based score. ShowExpected is derived from the score alone: the
// reply's own SHOW_EXPECTED line is never trusted, so a misbehaving model
// cannot reveal answers early. ParseResponse never fails; the worst input
// degrades to a fallback-scored result.
func ParseResponse(raw string, fb FallbackContext) EvaluationResult {
	result := EvaluationResult{Source: SourceLLM}

	if m := feedbackRegex.FindStringSubmatch(raw); m != nil && m[1] != "" {
		result.Feedback = strings.TrimSpace(m[1])
	} else {
		// Non-conforming reply: surface whatever text came back rather
		// than hiding it from the learner.
		result.Feedback = strings.TrimSpace(raw)
	}

	if m := scoreRegex.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > MaxScore {
			result.Score = fb.score()
			result.Source = SourceFallback
		} else {
			result.Score = n
		}
	} else {
		result.Score = fb.score()
		result.Source = SourceFallback
	}

	// Safety net: reveal only at the round maximum, and count a clue as
	// given whenever a first attempt left findings unmatched.
	result.ShowExpected = result.Score == MaxScore
	result.ClueGiven = fb.AttemptNumber < 2 && result.Score < MaxScore

	return result
}
