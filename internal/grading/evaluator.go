package grading

import (
	"context"
	"log/slog"

	"github.com/sebadog/radsim/internal/model"
)

// TextGenerator is the outbound text-generation collaborator: prompt in,
// free text out. Configured reports whether a credential is present;
// grading is refused gracefully when it is not.
type TextGenerator interface {
	Configured() bool
	Generate(ctx context.Context, systemInstruction, prompt string) (string, error)
}

// Evaluator grades one attempt: it builds the prompt, calls the generation
// service, and parses the reply with a deterministic fallback.
type Evaluator struct {
	gen TextGenerator
}

// NewEvaluator creates an Evaluator over the given generation client.
func NewEvaluator(gen TextGenerator) *Evaluator {
	return &Evaluator{gen: gen}
}

// Configured reports whether the generation service has a credential.
func (e *Evaluator) Configured() bool {
	return e.gen.Configured()
}

// EvaluateFirst grades a first-attempt impression. A transport failure is
// returned alongside a terminal result whose feedback carries the
// human-readable message; the caller keeps the attempt open in that case.
func (e *Evaluator) EvaluateFirst(ctx context.Context, c model.Case, impression string) (EvaluationResult, error) {
	fb := FallbackContext{
		ExpectedFindings: c.ExpectedFindings,
		AttemptNumber:    1,
		FirstAttempt:     impression,
	}
	return e.evaluate(ctx, SystemPrompt(), BuildFirstAttemptPrompt(c, impression), fb)
}

// EvaluateSecond grades a second-attempt impression cumulatively with the
// first.
func (e *Evaluator) EvaluateSecond(ctx context.Context, c model.Case, firstImpression, secondImpression string) (EvaluationResult, error) {
	fb := FallbackContext{
		ExpectedFindings: c.ExpectedFindings,
		AttemptNumber:    2,
		FirstAttempt:     firstImpression,
		SecondAttempt:    secondImpression,
	}
	return e.evaluate(ctx, SecondAttemptSystemPrompt(), BuildSecondAttemptPrompt(c, firstImpression, secondImpression), fb)
}

func (e *Evaluator) evaluate(ctx context.Context, system, prompt string, fb FallbackContext) (EvaluationResult, error) {
	raw, err := e.gen.Generate(ctx, system, prompt)
	if err != nil {
		slog.Error("feedback generation failed", "attempt", fb.AttemptNumber, "error", err)
		return EvaluationResult{
			Feedback: "Error communicating with the feedback service: " + err.Error(),
			Score:    0,
			Source:   SourceFallback,
		}, err
	}

	result := ParseResponse(raw, fb)
	if result.Source == SourceFallback {
		slog.Warn("feedback reply missing usable score, used deterministic fallback",
			"attempt", fb.AttemptNumber, "score", result.Score)
	}
	return result, nil
}
