// Package orchestrator drives the fixed five-role pipeline: Scanner (Stage
// A) runs alone, Linguist/Historian/Validator (Stage B) run concurrently
// and are merged into one timestamp-ordered stream, then RepairAdvisor
// (Stage C) runs alone. It owns per-stage deadlines, the collaboration-flag
// marking on Stage-B output, and sealing the final ResurrectionResult.
package orchestrator

import (
	"context"
	"time"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/cache"
)

// Deadlines bounds how long each stage's agent(s) may run before being
// cancelled.
type Deadlines struct {
	Scanner       time.Duration
	Linguist      time.Duration
	Historian     time.Duration
	Validator     time.Duration
	RepairAdvisor time.Duration
}

// DefaultDeadlines returns the per-role timeout budget used in production.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Scanner:       30 * time.Second,
		Linguist:      25 * time.Second,
		Historian:     25 * time.Second,
		Validator:     20 * time.Second,
		RepairAdvisor: 20 * time.Second,
	}
}

// Orchestrator wires the five agents together into the fixed pipeline
// shape. It holds no per-run state; a single Orchestrator safely drives
// many concurrent runs.
type Orchestrator struct {
	scanner       agentcore.Agent
	linguist      agentcore.Agent
	historian     agentcore.Agent
	validator     agentcore.Agent
	repairAdvisor agentcore.Agent
	deadlines     Deadlines
}

func New(scanner, linguist, historian, validator, repairAdvisor agentcore.Agent, deadlines Deadlines) *Orchestrator {
	return &Orchestrator{
		scanner:       scanner,
		linguist:      linguist,
		historian:     historian,
		validator:     validator,
		repairAdvisor: repairAdvisor,
		deadlines:     deadlines,
	}
}

type sealedResult struct {
	result *agentcore.ResurrectionResult
	err    error
}

// Run starts one full pipeline pass over ac and returns a cache.PipelineRun:
// a live message stream plus a blocking accessor for the sealed result. It
// is meant to be handed straight to cache.Cache.GetOrStart as the Starter
// for a cache miss.
func (o *Orchestrator) Run(ctx context.Context, ac *agentcore.AnalysisContext) *cache.PipelineRun {
	out := make(chan agentcore.Message)
	done := make(chan sealedResult, 1)

	go o.run(ctx, ac, out, done)

	return &cache.PipelineRun{
		Messages: out,
		Result: func() (*agentcore.ResurrectionResult, error) {
			r := <-done
			return r.result, r.err
		},
	}
}

func (o *Orchestrator) run(ctx context.Context, ac *agentcore.AnalysisContext, out chan<- agentcore.Message, done chan<- sealedResult) {
	defer close(out)
	start := time.Now()

	if !o.runStageA(ctx, ac, out) {
		done <- sealedResult{err: ctx.Err()}
		return
	}

	if !o.runStageBInto(ctx, ac, out) {
		done <- sealedResult{err: ctx.Err()}
		return
	}

	if !o.runStageC(ctx, ac, out) {
		done <- sealedResult{err: ctx.Err()}
		return
	}

	result := seal(ac, time.Since(start))
	done <- sealedResult{result: result}
}

// forward copies messages from src to out, stopping (and returning false)
// the moment ctx is cancelled. It returns true once src closes normally.
func forward(ctx context.Context, src <-chan agentcore.Message, out chan<- agentcore.Message) bool {
	for m := range src {
		select {
		case out <- m:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

func (o *Orchestrator) runStageA(ctx context.Context, ac *agentcore.AnalysisContext, out chan<- agentcore.Message) bool {
	sctx, cancel := context.WithTimeout(ctx, o.deadlines.Scanner)
	defer cancel()
	return forward(ctx, o.scanner.Process(sctx, ac), out)
}

func (o *Orchestrator) runStageBInto(ctx context.Context, ac *agentcore.AnalysisContext, out chan<- agentcore.Message) bool {
	deadlines := [3]time.Duration{o.deadlines.Linguist, o.deadlines.Historian, o.deadlines.Validator}
	merged, cleanup := runStageB(ctx, ac, o.linguist, o.historian, o.validator, deadlines)
	defer cleanup()

	// The role entering Stage B differs from Scanner (the last Stage-A
	// role), so the first Stage-B message is itself a collaboration event;
	// every subsequent role change within Stage B is marked the same way.
	lastRole := agentcore.RoleScanner
	for m := range merged {
		if m.Role != lastRole {
			m.Collaboration = true
			lastRole = m.Role
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

func (o *Orchestrator) runStageC(ctx context.Context, ac *agentcore.AnalysisContext, out chan<- agentcore.Message) bool {
	rctx, cancel := context.WithTimeout(ctx, o.deadlines.RepairAdvisor)
	defer cancel()
	return forward(ctx, o.repairAdvisor.Process(rctx, ac), out)
}

func seal(ac *agentcore.AnalysisContext, elapsed time.Duration) *agentcore.ResurrectionResult {
	overall, _ := ac.OverallConfidence()
	enhancedB64, applied := ac.EnhancedImage()

	var issues []string
	var flags []string
	for _, h := range ac.DamageHotspots() {
		if h.Description != "" {
			issues = append(issues, h.Description)
		}
		if h.DamageType != "" {
			flags = append(flags, h.DamageType)
		}
	}

	documentType := "manuscript"
	if historianFinding, ok := ac.GetFinding(agentcore.RoleHistorian); ok {
		if era, ok := historianFinding.Artifacts["era_estimate"].(string); ok && era != "" {
			documentType = "manuscript (" + era + ")"
		}
	}

	return &agentcore.ResurrectionResult{
		OverallConfidence:   overall,
		ProcessingTimeMS:    elapsed.Milliseconds(),
		RawOCRText:          ac.RawOCRText(),
		TransliteratedText:  ac.TransliteratedText(),
		EnhancedImageBase64: enhancedB64,
		RepairRecommendations: ac.RepairRecommendations(),
		DamageHotspots:      ac.DamageHotspots(),
		RestorationSummary: agentcore.RestorationSummary{
			DocumentType:        documentType,
			IssuesDetected:      issues,
			EnhancementsApplied: applied,
			QualityScore:        overall,
			StructuralFlags:     flags,
		},
	}
}
