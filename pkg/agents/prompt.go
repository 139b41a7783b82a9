package agents

import "strings"

const scannerSystemPrompt = "You are a document scanner specialized in Doke-Shona manuscripts. " +
	"Transcribe the provided image and transliterate it into modern Doke " +
	"orthography. Respond with the raw transcription, a blank line, then the " +
	"transliterated text."

const linguistSystemPrompt = "You are a Doke-Shona linguist. Refine the given transliteration, " +
	"correcting plausible OCR substitution errors. Respond with only the " +
	"corrected transliteration."

const historianSystemPrompt = "You are a historian of pre-colonial and colonial-era Zimbabwe. Given a " +
	"transliterated document, identify the likely era and historical subjects " +
	"it concerns. Respond with a short era estimate line, then one subject " +
	"per remaining line."

const validatorSystemPrompt = "You are a fact-checker cross-referencing a document transcription " +
	"against a historian's era/subject assessment. Respond with 'consistent' " +
	"or 'inconsistent' followed by a one-line reason."

const repairAdvisorSystemPrompt = "You are a paper conservator. Given a document's transcription and " +
	"condition notes, list damage hotspots (one per line, 'type: description') " +
	"followed by a blank line and then conservation recommendations (one per " +
	"line)."

// splitScanResponse parses the Scanner model response's two-section format
// (raw transcription, blank line, transliteration). If the model didn't
// follow the format, the whole response is used for both fields rather than
// failing the call outright.
func splitScanResponse(text string) (raw, transliterated string) {
	parts := strings.SplitN(text, "\n\n", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	trimmed := strings.TrimSpace(text)
	return trimmed, trimmed
}

// splitHistorianResponse parses the Historian model response's era-estimate
// first line plus subject lines.
func splitHistorianResponse(text string) (era string, subjects []string) {
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], lines[1:]
}

// splitRepairResponse parses the RepairAdvisor model response's hotspot
// lines, a blank-line separator, then recommendation lines.
func splitRepairResponse(text string) (hotspotLines, recommendations []string) {
	parts := strings.SplitN(text, "\n\n", 2)
	hotspotLines = nonEmptyLines(parts[0])
	if len(parts) == 2 {
		recommendations = nonEmptyLines(parts[1])
	}
	return hotspotLines, recommendations
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
