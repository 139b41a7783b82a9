package agentcore

// RestorationSummary is the human-facing digest folded into the final
// result, derived from the findings the five roles wrote during the run.
type RestorationSummary struct {
	DocumentType        string   `json:"document_type"`
	IssuesDetected       []string `json:"issues_detected"`
	EnhancementsApplied []string `json:"enhancements_applied"`
	QualityScore        int      `json:"quality_score"`
	StructuralFlags      []string `json:"structural_flags"`
}

// ResurrectionResult is the sealed output of one full pipeline run, cached
// by content hash and returned to every caller (primary and late
// subscribers alike) on completion.
type ResurrectionResult struct {
	OverallConfidence      int                 `json:"overall_confidence"`
	ProcessingTimeMS       int64               `json:"processing_time_ms"`
	RawOCRText             string              `json:"raw_ocr_text"`
	TransliteratedText     string              `json:"transliterated_text"`
	EnhancedImageBase64    string              `json:"enhanced_image_base64"`
	RepairRecommendations  []string            `json:"repair_recommendations"`
	DamageHotspots         []DamageHotspot     `json:"damage_hotspots"`
	RestorationSummary     RestorationSummary  `json:"restoration_summary"`
}

// CacheEntry pairs a content hash with the completed result of its run. The
// dedup cache in pkg/cache keeps its Ready results in its own internal entry
// type and does not use this struct.
type CacheEntry struct {
	ContentHash string
	Result      ResurrectionResult
}
