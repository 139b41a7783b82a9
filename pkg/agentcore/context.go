package agentcore

import (
	"context"
	"sync"
	"time"
)

// Finding is one role's contribution to the shared analysis context:
// its confidence in its own output plus a small bag of free-form artifacts
// ("era_estimate", "damage_type", ...) downstream roles or the final result
// assembly read by name.
type Finding struct {
	Confidence  int
	KeyFindings []string
	Artifacts   map[string]any
}

// DamageHotspot is one localized area of physical or legibility damage
// RepairAdvisor reports, either from a model call or its deterministic
// fallback heuristic.
type DamageHotspot struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Radius      float64 `json:"radius"`
	Severity    string  `json:"severity"`
	DamageType  string  `json:"damage_type"`
	Description string  `json:"description"`
}

// AnalysisContext is the mutable state five agents collaborate through.
// Every field has exactly one writer: Scanner owns the image/OCR fields,
// each Stage-B role owns its own Findings entry, RepairAdvisor owns the
// hotspot/recommendation fields. Reads are safe from any goroutine at any
// time; a reader that needs to observe another role's *completed* output
// (the Validator reading Linguist/Historian, per the weighted-confidence
// rule) must synchronize on that role's finding through WaitForFinding
// rather than polling GetFinding, since Stage-B roles run concurrently and
// must not observe each other's in-progress state.
type AnalysisContext struct {
	mu sync.Mutex

	originalImage []byte
	startTime     time.Time

	enhancedImageB64    string
	appliedEnhancements []string
	rawOCRText          string
	transliteratedText  string

	findings      map[Role]Finding
	findingReady  map[Role]chan struct{}
	findingClosed map[Role]bool

	damageHotspots         []DamageHotspot
	repairRecommendations  []string
	overallConfidence      int
	overallConfidenceIsSet bool
}

// NewAnalysisContext seeds a fresh context for one submission. originalImage
// is retained by reference; callers must not mutate it afterward.
func NewAnalysisContext(originalImage []byte) *AnalysisContext {
	roles := []Role{RoleScanner, RoleLinguist, RoleHistorian, RoleValidator, RoleRepairAdvisor}
	ready := make(map[Role]chan struct{}, len(roles))
	for _, r := range roles {
		ready[r] = make(chan struct{})
	}
	return &AnalysisContext{
		originalImage: originalImage,
		startTime:     time.Now(),
		findings:      make(map[Role]Finding, len(roles)),
		findingReady:  ready,
		findingClosed: make(map[Role]bool, len(roles)),
	}
}

func (c *AnalysisContext) OriginalImage() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.originalImage
}

func (c *AnalysisContext) StartTime() time.Time { return c.startTime }

// SetEnhancement records Scanner's enhancement pass output. Single-writer:
// only Scanner calls this, once, before it writes OCR output.
func (c *AnalysisContext) SetEnhancement(enhancedB64 string, applied []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enhancedImageB64 = enhancedB64
	c.appliedEnhancements = applied
}

func (c *AnalysisContext) EnhancedImage() (string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enhancedImageB64, c.appliedEnhancements
}

// SetOCR records Scanner's OCR/transliteration output. Single-writer: only
// Scanner calls this.
func (c *AnalysisContext) SetOCR(raw, transliterated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawOCRText = raw
	c.transliteratedText = transliterated
}

func (c *AnalysisContext) RawOCRText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rawOCRText
}

func (c *AnalysisContext) TransliteratedText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transliteratedText
}

// SetFinding records role's finding and releases any goroutine blocked in
// WaitForFinding(role). Single-writer per role: each role calls this exactly
// once, for itself.
func (c *AnalysisContext) SetFinding(role Role, f Finding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.findings[role] = f
	if !c.findingClosed[role] {
		c.findingClosed[role] = true
		close(c.findingReady[role])
	}
}

// GetFinding returns role's finding if it has already been written. It never
// blocks; callers that must wait for a concurrently-running role's
// completion use WaitForFinding instead.
func (c *AnalysisContext) GetFinding(role Role) (Finding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.findings[role]
	return f, ok
}

// WaitForFinding blocks until role's finding has been written or ctx is
// done, whichever comes first.
func (c *AnalysisContext) WaitForFinding(ctx context.Context, role Role) (Finding, error) {
	c.mu.Lock()
	ch := c.findingReady[role]
	c.mu.Unlock()

	select {
	case <-ch:
		c.mu.Lock()
		f := c.findings[role]
		c.mu.Unlock()
		return f, nil
	case <-ctx.Done():
		return Finding{}, ctx.Err()
	}
}

// AppendDamageHotspots adds hotspots reported by RepairAdvisor. Append-only,
// single-writer: only RepairAdvisor calls this.
func (c *AnalysisContext) AppendDamageHotspots(hotspots ...DamageHotspot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.damageHotspots = append(c.damageHotspots, hotspots...)
}

func (c *AnalysisContext) DamageHotspots() []DamageHotspot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DamageHotspot, len(c.damageHotspots))
	copy(out, c.damageHotspots)
	return out
}

// AppendRepairRecommendations adds recommendations reported by
// RepairAdvisor. Append-only, single-writer.
func (c *AnalysisContext) AppendRepairRecommendations(recs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repairRecommendations = append(c.repairRecommendations, recs...)
}

func (c *AnalysisContext) RepairRecommendations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.repairRecommendations))
	copy(out, c.repairRecommendations)
	return out
}

// SetOverallConfidence records the weighted aggregate. Single-writer: only
// the Validator calls this, once.
func (c *AnalysisContext) SetOverallConfidence(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overallConfidence = v
	c.overallConfidenceIsSet = true
}

func (c *AnalysisContext) OverallConfidence() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overallConfidence, c.overallConfidenceIsSet
}
