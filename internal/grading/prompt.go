package grading

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sebadog/radsim/internal/model"
)

// The prompt trailer and ParseResponse are a matched pair: any change to the
// label lines below must be mirrored in the parser regexes.
const responseFormatBlock = `Format your response as:
FEEDBACK: [Your Socratic feedback]
SCORE: [Numerical score]
CLUE_GIVEN: [true/false]
SHOW_EXPECTED: [true only if score is 100]`

var (
	impressionTagRegex = regexp.MustCompile(`(?i)</?\s*trainee-impression\b[^>]*>`)
	systemTagRegex     = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// SystemPrompt is the standing instruction sent with every first-attempt
// grading request.
func SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a radiology expert providing feedback using the Socratic method. Follow these instructions strictly:\n\n")
	sb.WriteString("1. For correct findings:\n")
	sb.WriteString("   - Congratulate by paraphrasing the correct findings\n")
	sb.WriteString("   - Award full points for each matched finding\n\n")
	sb.WriteString("2. For missed findings:\n")
	sb.WriteString("   - Ask the trainee to review specific areas without revealing the finding\n")
	sb.WriteString("   - Provide ONE clue per missed finding\n")
	sb.WriteString("   - Never use words from the diagnosis in clues\n\n")
	sb.WriteString("3. For misinterpreted findings:\n")
	sb.WriteString("   - Encourage considering other etiologies without disclosing the diagnosis\n\n")
	sb.WriteString("4. For findings not in the expected or additional lists:\n")
	sb.WriteString("   - Note that the described abnormality is not included among the findings for this case\n\n")
	sb.WriteString("5. Scoring:\n")
	sb.WriteString("   - Total points (100) divided evenly across expected findings\n")
	sb.WriteString("   - Full points per finding identified on the first attempt\n")
	sb.WriteString("   - Half points per finding identified after a clue\n")
	sb.WriteString("   - No points for findings never identified\n")
	return sb.String()
}

// SecondAttemptSystemPrompt is the standing instruction for second-attempt
// grading requests.
func SecondAttemptSystemPrompt() string {
	return "You are a radiology expert evaluating a trainee's second attempt after clues were given. " +
		"Award full points for findings identified on the first attempt and half points for findings " +
		"identified only on the second. Never reveal expected findings verbatim in your feedback."
}

// BuildFirstAttemptPrompt produces the grading instruction for a first
// attempt, embedding the case context, the expected findings (to grade
// against, never to reveal), and the learner's impression.
func BuildFirstAttemptPrompt(c model.Case, impression string) string {
	points := PointsPerFinding(len(c.ExpectedFindings))

	var sb strings.Builder
	sb.WriteString("Evaluate this trainee's first-attempt impression against the expected findings.\n\n")
	sb.WriteString("Case Information:\n")
	sb.WriteString("Title: " + c.Title + "\n")
	sb.WriteString("Accession Number: " + c.AccessionNumber + "\n")
	sb.WriteString("Clinical Information: " + c.ClinicalInfo + "\n\n")

	fmt.Fprintf(&sb, "Expected Findings (%d findings, %d points each, do not reveal verbatim):\n",
		len(c.ExpectedFindings), points)
	for _, f := range c.ExpectedFindings {
		sb.WriteString("- " + f + "\n")
	}
	if len(c.AdditionalFindings) > 0 {
		sb.WriteString("\nAdditional Findings (context only, never scored):\n")
		for _, f := range c.AdditionalFindings {
			sb.WriteString("- " + f + "\n")
		}
	}

	sb.WriteString("\nTrainee's impression:\n\"" + SanitizeImpression(impression) + "\"\n\n")

	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Compare the impression with each expected finding\n")
	fmt.Fprintf(&sb, "2. Award %d points per matched finding; no points for missed or misinterpreted findings\n", points)
	sb.WriteString("3. Provide ONE clue per missed finding, without revealing it\n")
	sb.WriteString("4. Use Socratic, clue-based language for misses\n\n")
	sb.WriteString(responseFormatBlock)
	return sb.String()
}

// BuildSecondAttemptPrompt produces the grading instruction for a second
// attempt. Both impressions are included so credit earned on the first
// attempt is retained.
func BuildSecondAttemptPrompt(c model.Case, firstImpression, secondImpression string) string {
	points := PointsPerFinding(len(c.ExpectedFindings))

	var sb strings.Builder
	sb.WriteString("Evaluate this trainee's second attempt after clues were given on the first.\n\n")
	sb.WriteString("Case Information:\n")
	sb.WriteString("Title: " + c.Title + "\n")
	sb.WriteString("Clinical Information: " + c.ClinicalInfo + "\n\n")

	fmt.Fprintf(&sb, "Expected Findings (%d findings, %d points each on the first attempt, %d on the second, do not reveal verbatim):\n",
		len(c.ExpectedFindings), points, points/2)
	for _, f := range c.ExpectedFindings {
		sb.WriteString("- " + f + "\n")
	}

	sb.WriteString("\nFirst attempt:\n\"" + SanitizeImpression(firstImpression) + "\"\n\n")
	sb.WriteString("Second attempt:\n\"" + SanitizeImpression(secondImpression) + "\"\n\n")

	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Findings matched on the first attempt keep full credit\n")
	sb.WriteString("2. Findings matched only on the second attempt earn half credit\n")
	sb.WriteString("3. Report the cumulative score across both attempts\n")
	sb.WriteString("4. There is no third attempt, so do not offer further clues\n\n")
	sb.WriteString(responseFormatBlock)
	return sb.String()
}

// SanitizeImpression strips markup that could smuggle instructions into the
// prompt and truncates unreasonably long submissions.
func SanitizeImpression(impression string) string {
	impression = impressionTagRegex.ReplaceAllString(impression, "")
	impression = systemTagRegex.ReplaceAllString(impression, "")
	impression = strings.TrimSpace(impression)

	if impression == "" {
		return "[No impression provided]"
	}

	if utf8.RuneCountInString(impression) > 10000 {
		runes := []rune(impression)
		impression = string(runes[:10000]) + "\n\n[Impression truncated due to length]"
	}

	return impression
}
