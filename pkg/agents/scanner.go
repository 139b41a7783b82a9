package agents

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/enhancement"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
)

// Scanner is Stage A: enhance the submitted image, then OCR and transliterate
// it. It is the only role that reads AnalysisContext.OriginalImage and the
// only one that writes the enhancement and OCR fields.
type Scanner struct {
	Enhancer  enhancement.Enhancer
	Invoker   *invoker.Invoker
	Model     string
	MaxTokens int
}

func (s *Scanner) Role() agentcore.Role { return agentcore.RoleScanner }

func (s *Scanner) Run(ctx context.Context, ac *agentcore.AnalysisContext, emit agentcore.Emitter) agentcore.Outcome {
	image := ac.OriginalImage()
	if len(image) == 0 {
		ac.SetEnhancement("", nil)
		ac.SetOCR("", "")
		ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "no image provided", Confidence: 0, Section: "no_input"}
	}

	if !emit("enhancing image") {
		return agentcore.Outcome{}
	}

	enhanced, applied, err := s.Enhancer.Enhance(ctx, image)
	if err != nil {
		enhanced, applied = image, nil
		if !emit("enhancement failed, passing through original image", agentcore.Fallback()) {
			return agentcore.Outcome{}
		}
	}

	encoded := base64.StdEncoding.EncodeToString(enhanced)
	ac.SetEnhancement(encoded, applied)
	if !emit(fmt.Sprintf("applied %d enhancement(s)", len(applied)), agentcore.WithSection("enhancement")) {
		return agentcore.Outcome{}
	}

	userPrompt := truncateUserInput(fmt.Sprintf("Transcribe and transliterate this %d-byte manuscript image (base64-encoded):\n%s", len(enhanced), encoded))
	text, callErr := s.Invoker.Invoke(ctx, s.Model, scannerSystemPrompt, userPrompt, s.MaxTokens, deadlineFor(ctx))
	if callErr != nil {
		if !emit("OCR model call failed, no transcription available", agentcore.Fallback()) {
			return agentcore.Outcome{}
		}
		ac.SetOCR("", "")
		ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 0})
		return agentcore.Outcome{Text: "OCR unavailable", Confidence: 0, Section: "fallback"}
	}

	raw, transliterated := splitScanResponse(text)
	ac.SetOCR(raw, transliterated)
	confidence := estimateOCRConfidence(raw)
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{
		Confidence:  confidence,
		KeyFindings: []string{transliterated},
	})
	if !emit("OCR and transliteration complete", agentcore.WithSection("ocr"), agentcore.WithConfidence(confidence)) {
		return agentcore.Outcome{}
	}
	return agentcore.Outcome{Text: "scan complete", Confidence: confidence}
}

// estimateOCRConfidence is a simple length-based proxy: very short
// transcriptions are treated as low-confidence noise, since the model
// backend in this repository does not report a native confidence score.
func estimateOCRConfidence(raw string) int {
	switch {
	case len(raw) == 0:
		return 0
	case len(raw) < 20:
		return 30
	case len(raw) < 100:
		return 60
	default:
		return 85
	}
}
