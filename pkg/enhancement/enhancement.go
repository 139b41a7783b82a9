// Package enhancement defines the image-enhancement collaborator the
// Scanner agent calls before OCR. Enhancement primitives themselves are out
// of scope for this repository; only the interface boundary and a
// deterministic stub implementation live here.
package enhancement

import "context"

// Enhancer is the injected image-enhancement collaborator.
type Enhancer interface {
	Enhance(ctx context.Context, image []byte) (enhanced []byte, applied []string, err error)
}

// PassthroughEnhancer returns the input image unchanged and reports no
// enhancements applied. It is the identity enhancer used in tests; Scanner
// does not use it itself, and on an enhancement failure it passes the
// original image through with no enhancements directly.
type PassthroughEnhancer struct{}

func (PassthroughEnhancer) Enhance(ctx context.Context, image []byte) ([]byte, []string, error) {
	return image, nil, nil
}

// HeuristicEnhancer applies a small set of named, deterministic passes
// (flagged by name only — no actual pixel transform runs in this
// repository, since enhancement primitives are explicitly out of scope)
// and reports which ones it "applied" based on simple size heuristics, so
// downstream agents and the final restoration summary have realistic
// enhancement-name data to reason about.
type HeuristicEnhancer struct{}

func (HeuristicEnhancer) Enhance(ctx context.Context, image []byte) ([]byte, []string, error) {
	var applied []string
	if len(image) > 0 {
		applied = append(applied, "contrast_normalization")
	}
	if len(image) > 1<<20 {
		applied = append(applied, "denoise")
	}
	return image, applied, nil
}
