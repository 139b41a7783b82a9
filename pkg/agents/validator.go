package agents

import (
	"context"
	"fmt"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
)

// Validator is the third Stage-B role. It runs concurrently with Linguist
// and Historian but its aggregation step depends on their output, so it
// synchronizes on their completed findings through WaitForFinding rather
// than polling — it never observes their in-progress state, only the
// finished result, which preserves the disjoint-write guarantee the other
// two roles rely on.
type Validator struct {
	Invoker   *invoker.Invoker
	Model     string
	MaxTokens int
}

func (v *Validator) Role() agentcore.Role { return agentcore.RoleValidator }

func (v *Validator) Run(ctx context.Context, ac *agentcore.AnalysisContext, emit agentcore.Emitter) agentcore.Outcome {
	scannerFinding, ok := ac.GetFinding(agentcore.RoleScanner)
	if !ok {
		ac.SetFinding(agentcore.RoleValidator, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "scanner finding unavailable", Confidence: 0, Section: "no_input"}
	}

	if !emit("waiting for linguist and historian assessments") {
		return agentcore.Outcome{}
	}

	linguistFinding, err := ac.WaitForFinding(ctx, agentcore.RoleLinguist)
	if err != nil {
		return agentcore.Outcome{}
	}
	historianFinding, err := ac.WaitForFinding(ctx, agentcore.RoleHistorian)
	if err != nil {
		return agentcore.Outcome{}
	}

	if !emit("cross-checking transcription against historical assessment") {
		return agentcore.Outcome{}
	}

	userPrompt := truncateUserInput(fmt.Sprintf("Transcription:\n%s\n\nHistorical assessment: %v", ac.TransliteratedText(), historianFinding.Artifacts["era_estimate"]))
	_, callErr := v.Invoker.Invoke(ctx, v.Model, validatorSystemPrompt, userPrompt, v.MaxTokens, deadlineFor(ctx))

	ownConfidence := 70
	if callErr != nil {
		ownConfidence = 50
		if !emit("consistency cross-check failed, skipping", agentcore.Fallback()) {
			return agentcore.Outcome{}
		}
	}

	overall := int(
		WeightScanner*float64(scannerFinding.Confidence) +
			WeightLinguist*float64(linguistFinding.Confidence) +
			WeightHistorian*float64(historianFinding.Confidence) +
			WeightValidator*float64(ownConfidence),
	)
	overall = clamp(overall, 0, 100)

	ac.SetOverallConfidence(overall)
	ac.SetFinding(agentcore.RoleValidator, agentcore.Finding{
		Confidence: ownConfidence,
		Artifacts:  map[string]any{"overall_confidence": overall},
	})
	if !emit(fmt.Sprintf("overall confidence %d", overall), agentcore.WithConfidence(overall)) {
		return agentcore.Outcome{}
	}
	return agentcore.Outcome{Text: "validation complete", Confidence: overall}
}
