package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
	"github.com/nhaka-archive/resurrection/pkg/reference"
)

// Linguist is one of the three Stage-B roles: it refines Scanner's
// transliteration against the Doke-Shona character map. It reads only
// Scanner's completed fields; it never observes Historian or Validator.
type Linguist struct {
	Reference *reference.Tables
	Invoker   *invoker.Invoker
	Model     string
	MaxTokens int
}

func (l *Linguist) Role() agentcore.Role { return agentcore.RoleLinguist }

func (l *Linguist) Run(ctx context.Context, ac *agentcore.AnalysisContext, emit agentcore.Emitter) agentcore.Outcome {
	if _, ok := ac.GetFinding(agentcore.RoleScanner); !ok {
		ac.SetFinding(agentcore.RoleLinguist, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "scanner finding unavailable", Confidence: 0, Section: "no_input"}
	}

	raw := ac.RawOCRText()
	transliterated := ac.TransliteratedText()
	if strings.TrimSpace(raw) == "" && strings.TrimSpace(transliterated) == "" {
		ac.SetFinding(agentcore.RoleLinguist, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "no OCR text to refine", Confidence: 0, Section: "no_input"}
	}

	if !emit("refining transliteration against reference orthography") {
		return agentcore.Outcome{}
	}

	userPrompt := truncateUserInput(fmt.Sprintf("Raw OCR:\n%s\n\nCurrent transliteration:\n%s", raw, transliterated))
	refined, callErr := l.Invoker.Invoke(ctx, l.Model, linguistSystemPrompt, userPrompt, l.MaxTokens, deadlineFor(ctx))

	var confidence int
	if callErr != nil {
		refined = l.Reference.ApplyCharacterMap(transliterated)
		confidence = clamp(len(refined)/4, 10, 45)
		if !emit("model refinement failed, applying character map mechanically", agentcore.Fallback()) {
			return agentcore.Outcome{}
		}
	} else {
		confidence = 75
	}

	ac.SetFinding(agentcore.RoleLinguist, agentcore.Finding{
		Confidence:  confidence,
		KeyFindings: []string{refined},
		Artifacts:   map[string]any{"refined_transliteration": refined},
	})
	if !emit("transliteration refined", agentcore.WithSection("transliteration"), agentcore.WithConfidence(confidence)) {
		return agentcore.Outcome{}
	}
	return agentcore.Outcome{Text: refined, Confidence: confidence}
}
