// Package reference loads the domain knowledge tables injected into the
// five agents at startup: the Doke-Shona orthography character map, a
// historical figures/era gazetteer, and a physical-damage taxonomy. None of
// it is hardcoded in the agents themselves — everything lives in YAML so
// the tables can be revised without a code change.
package reference

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CharacterMapping is one mechanical substitution the Linguist's fallback
// path applies when no model call succeeds.
type CharacterMapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Note string `yaml:"note,omitempty"`
}

// HistoricalFigure is one entry in the Historian's era/subject gazetteer.
type HistoricalFigure struct {
	Name      string   `yaml:"name"`
	EraStart  int      `yaml:"era_start"`
	EraEnd    int       `yaml:"era_end"`
	Keywords  []string `yaml:"keywords"`
	Region    string   `yaml:"region,omitempty"`
}

// DamageType is one entry in RepairAdvisor's conservation taxonomy.
type DamageType struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Recommendation string `yaml:"recommendation"`
}

// Tables bundles the three reference registries injected into the agents.
type Tables struct {
	CharacterMap      []CharacterMapping `yaml:"character_map"`
	HistoricalFigures []HistoricalFigure `yaml:"historical_figures"`
	DamageTaxonomy    []DamageType       `yaml:"damage_taxonomy"`
}

// Load reads and validates the reference-data YAML file at path.
func Load(path string) (*Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference: reading %s: %w", path, err)
	}
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("reference: parsing %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("reference: %s: %w", path, err)
	}
	return &t, nil
}

func (t *Tables) validate() error {
	for i, m := range t.CharacterMap {
		if m.From == "" {
			return fmt.Errorf("character_map[%d]: empty from", i)
		}
	}
	for i, f := range t.HistoricalFigures {
		if f.Name == "" {
			return fmt.Errorf("historical_figures[%d]: empty name", i)
		}
		if f.EraStart > f.EraEnd && f.EraEnd != 0 {
			return fmt.Errorf("historical_figures[%d] (%s): era_start after era_end", i, f.Name)
		}
	}
	for i, d := range t.DamageTaxonomy {
		if d.Name == "" {
			return fmt.Errorf("damage_taxonomy[%d]: empty name", i)
		}
	}
	return nil
}

// ApplyCharacterMap performs the Linguist fallback's mechanical,
// character-by-character substitution pass over raw OCR text.
func (t *Tables) ApplyCharacterMap(text string) string {
	for _, m := range t.CharacterMap {
		text = strings.ReplaceAll(text, m.From, m.To)
	}
	return text
}

// MatchHistoricalFigures returns every gazetteer entry whose keyword
// appears in text, used by the Historian's keyword-match fallback.
func (t *Tables) MatchHistoricalFigures(text string) []HistoricalFigure {
	lower := strings.ToLower(text)
	var matches []HistoricalFigure
	for _, f := range t.HistoricalFigures {
		for _, kw := range f.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				matches = append(matches, f)
				break
			}
		}
	}
	return matches
}

// DamageTypeByName looks up a taxonomy entry by exact name, used by
// RepairAdvisor to phrase a recommendation for a detected hotspot.
func (t *Tables) DamageTypeByName(name string) (DamageType, bool) {
	for _, d := range t.DamageTaxonomy {
		if d.Name == name {
			return d, true
		}
	}
	return DamageType{}, false
}
