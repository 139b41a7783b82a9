package agents

import (
	"context"
	"fmt"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
	"github.com/nhaka-archive/resurrection/pkg/reference"
)

// RepairAdvisor is Stage C: it runs after every prior role and, from
// Scanner's transliteration and applied enhancements, localizes damage
// hotspots plus conservation recommendations.
type RepairAdvisor struct {
	Reference *reference.Tables
	Invoker   *invoker.Invoker
	Model     string
	MaxTokens int
}

func (r *RepairAdvisor) Role() agentcore.Role { return agentcore.RoleRepairAdvisor }

func (r *RepairAdvisor) Run(ctx context.Context, ac *agentcore.AnalysisContext, emit agentcore.Emitter) agentcore.Outcome {
	if _, ok := ac.GetFinding(agentcore.RoleScanner); !ok {
		ac.SetFinding(agentcore.RoleRepairAdvisor, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "no upstream findings available", Confidence: 0, Section: "no_input"}
	}

	if !emit("localizing damage and drafting conservation advice") {
		return agentcore.Outcome{}
	}

	_, applied := ac.EnhancedImage()
	userPrompt := truncateUserInput(fmt.Sprintf("Transcription:\n%s\n\nEnhancements applied during scanning: %v", ac.TransliteratedText(), applied))
	text, callErr := r.Invoker.Invoke(ctx, r.Model, repairAdvisorSystemPrompt, userPrompt, r.MaxTokens, deadlineFor(ctx))

	var confidence int
	if callErr != nil {
		hotspots, recs := r.fallbackFromEnhancements(applied)
		ac.AppendDamageHotspots(hotspots...)
		ac.AppendRepairRecommendations(recs...)
		confidence = 30
		if !emit("damage localization model call failed, using enhancement-based heuristic", agentcore.Fallback()) {
			return agentcore.Outcome{}
		}
	} else {
		hotspotLines, recs := splitRepairResponse(text)
		hotspots := r.parseHotspotLines(hotspotLines)
		ac.AppendDamageHotspots(hotspots...)
		ac.AppendRepairRecommendations(recs...)
		confidence = 65
	}

	ac.SetFinding(agentcore.RoleRepairAdvisor, agentcore.Finding{Confidence: confidence})
	if !emit("repair advice complete", agentcore.WithConfidence(confidence)) {
		return agentcore.Outcome{}
	}
	return agentcore.Outcome{Text: "repair advice complete", Confidence: confidence}
}

// fallbackFromEnhancements treats the enhancement passes Scanner already
// applied as a proxy for where deterioration is likely: an image that
// needed denoising is assumed to carry surface noise, and any other pass is
// taken as a sign of generalized deterioration. Each hotspot covers the
// whole page; no precisely localized damage such as a tear is reported.
func (r *RepairAdvisor) fallbackFromEnhancements(applied []string) ([]agentcore.DamageHotspot, []string) {
	if len(applied) == 0 {
		return nil, nil
	}
	var hotspots []agentcore.DamageHotspot
	var recs []string
	for _, name := range applied {
		damageType := "generalized_deterioration"
		if name == "denoise" {
			damageType = "surface_noise"
		}
		dt, ok := r.Reference.DamageTypeByName(damageType)
		description := damageType
		recommendation := "consult a conservator before further handling"
		if ok {
			description = dt.Description
			recommendation = dt.Recommendation
		}
		hotspots = append(hotspots, agentcore.DamageHotspot{
			X: 50, Y: 50, Radius: 100,
			Severity: "unknown", DamageType: damageType, Description: description,
		})
		recs = append(recs, recommendation)
	}
	return hotspots, recs
}

func (r *RepairAdvisor) parseHotspotLines(lines []string) []agentcore.DamageHotspot {
	hotspots := make([]agentcore.DamageHotspot, 0, len(lines))
	for _, line := range lines {
		hotspots = append(hotspots, agentcore.DamageHotspot{
			X: 50, Y: 50, Radius: 50,
			Severity: "moderate", Description: line,
		})
	}
	return hotspots
}
