package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
	"github.com/nhaka-archive/resurrection/pkg/reference"
)

// Historian is one of the three Stage-B roles: it estimates the document's
// era and subjects from Scanner's transliteration. Like Linguist, it only
// ever reads Scanner's completed fields.
type Historian struct {
	Reference *reference.Tables
	Invoker   *invoker.Invoker
	Model     string
	MaxTokens int
}

func (h *Historian) Role() agentcore.Role { return agentcore.RoleHistorian }

func (h *Historian) Run(ctx context.Context, ac *agentcore.AnalysisContext, emit agentcore.Emitter) agentcore.Outcome {
	if _, ok := ac.GetFinding(agentcore.RoleScanner); !ok {
		ac.SetFinding(agentcore.RoleHistorian, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "scanner finding unavailable", Confidence: 0, Section: "no_input"}
	}

	transliterated := ac.TransliteratedText()
	if strings.TrimSpace(transliterated) == "" {
		ac.SetFinding(agentcore.RoleHistorian, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "no transliterated text to assess", Confidence: 0, Section: "no_input"}
	}

	if !emit("assessing era and historical subjects") {
		return agentcore.Outcome{}
	}

	text, callErr := h.Invoker.Invoke(ctx, h.Model, historianSystemPrompt, truncateUserInput(transliterated), h.MaxTokens, deadlineFor(ctx))

	var era string
	var subjects []string
	var confidence int
	if callErr != nil {
		matches := h.Reference.MatchHistoricalFigures(transliterated)
		for _, m := range matches {
			subjects = append(subjects, m.Name)
		}
		if len(matches) > 0 {
			era = fmt.Sprintf("~%d-%d", matches[0].EraStart, matches[0].EraEnd)
			confidence = clamp(20*len(matches), 10, 50)
		} else {
			era = "undetermined"
			confidence = 5
		}
		if !emit("model assessment failed, falling back to keyword matching", agentcore.Fallback()) {
			return agentcore.Outcome{}
		}
	} else {
		era, subjects = splitHistorianResponse(text)
		confidence = 70
	}

	ac.SetFinding(agentcore.RoleHistorian, agentcore.Finding{
		Confidence:  confidence,
		KeyFindings: subjects,
		Artifacts:   map[string]any{"era_estimate": era},
	})
	if !emit(fmt.Sprintf("era estimate: %s", era), agentcore.WithSection("era_estimate"), agentcore.WithConfidence(confidence)) {
		return agentcore.Outcome{}
	}
	return agentcore.Outcome{Text: era, Confidence: confidence}
}
