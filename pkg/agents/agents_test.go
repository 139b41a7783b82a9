package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/budget"
	"github.com/nhaka-archive/resurrection/pkg/enhancement"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
	"github.com/nhaka-archive/resurrection/pkg/reference"
)

type stubBackend struct {
	text string
	err  error
}

func (s stubBackend) Invoke(ctx context.Context, model, system, user string, maxTokens int) (string, invoker.TokenUsage, error) {
	if s.err != nil {
		return "", invoker.TokenUsage{}, s.err
	}
	return s.text, invoker.TokenUsage{InputTokens: 10, OutputTokens: 10}, nil
}

func newInvoker(backend invoker.ModelBackend) *invoker.Invoker {
	ledger := budget.New(1000, nil)
	cfg := invoker.Config{Pricing: map[string]invoker.ModelPricing{"m": {CostPerInputToken: 0.001, CostPerOutputToken: 0.001}}}
	return invoker.New(backend, ledger, cfg, nil, nil)
}

func testTables() *reference.Tables {
	return &reference.Tables{
		CharacterMap:      []reference.CharacterMapping{{From: "0", To: "o"}},
		HistoricalFigures: []reference.HistoricalFigure{{Name: "Lobengula", EraStart: 1870, EraEnd: 1894, Keywords: []string{"lobengula"}}},
		DamageTaxonomy:    []reference.DamageType{{Name: "surface_noise", Description: "surface grime", Recommendation: "gentle dry cleaning"}},
	}
}

func collectMessages(ctx context.Context, agent agentcore.Agent, ac *agentcore.AnalysisContext) []agentcore.Message {
	var msgs []agentcore.Message
	for m := range agent.Process(ctx, ac) {
		msgs = append(msgs, m)
	}
	return msgs
}

func TestScannerEmptyImageIsNoInput(t *testing.T) {
	ac := agentcore.NewAnalysisContext(nil)
	scanner := agentcore.NewBaseAgent(&Scanner{Enhancer: enhancement.PassthroughEnhancer{}, Invoker: newInvoker(stubBackend{text: "x"}), Model: "m", MaxTokens: 100})

	msgs := collectMessages(context.Background(), scanner, ac)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, agentcore.KindCompletion, last.Kind)
	assert.Equal(t, "no_input", last.Section)
	assert.Equal(t, 0, *last.Confidence)
}

func TestScannerFallbackOnInvokerFailure(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("image-bytes"))
	scanner := agentcore.NewBaseAgent(&Scanner{Enhancer: enhancement.PassthroughEnhancer{}, Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 100})

	msgs := collectMessages(context.Background(), scanner, ac)
	require.True(t, len(msgs) >= 2)
	assert.Equal(t, agentcore.KindActivation, msgs[0].Kind)

	var sawFallback bool
	for _, m := range msgs {
		if m.Section == "fallback" {
			sawFallback = true
		}
	}
	assert.True(t, sawFallback)

	f, ok := ac.GetFinding(agentcore.RoleScanner)
	require.True(t, ok)
	assert.Equal(t, 0, f.Confidence)
}

func TestScannerSuccessWritesFindingAndOCRText(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("image-bytes"))
	scanner := agentcore.NewBaseAgent(&Scanner{
		Enhancer:  enhancement.HeuristicEnhancer{},
		Invoker:   newInvoker(stubBackend{text: "raw transcription here\n\ntransliterated text here"}),
		Model:     "m",
		MaxTokens: 100,
	})

	msgs := collectMessages(context.Background(), scanner, ac)
	last := msgs[len(msgs)-1]
	assert.Equal(t, agentcore.KindCompletion, last.Kind)
	assert.Greater(t, *last.Confidence, 0)
	assert.Equal(t, "transliterated text here", ac.TransliteratedText())
}

func TestLinguistNoInputWhenOCRTextEmpty(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("img"))
	ac.SetOCR("", "")
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 0})

	linguist := agentcore.NewBaseAgent(&Linguist{Reference: testTables(), Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 50})
	msgs := collectMessages(context.Background(), linguist, ac)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "no_input", last.Section)
}

func TestLinguistFallbackAppliesCharacterMap(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("img"))
	ac.SetOCR("w00d", "w00d")
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 80})

	linguist := agentcore.NewBaseAgent(&Linguist{Reference: testTables(), Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 50})
	collectMessages(context.Background(), linguist, ac)

	f, ok := ac.GetFinding(agentcore.RoleLinguist)
	require.True(t, ok)
	assert.Equal(t, "wood", f.Artifacts["refined_transliteration"])
}

func TestHistorianFallbackMatchesKeywords(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("img"))
	ac.SetOCR("x", "A letter about Lobengula and his court")
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 80})

	historian := agentcore.NewBaseAgent(&Historian{Reference: testTables(), Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 50})
	collectMessages(context.Background(), historian, ac)

	f, ok := ac.GetFinding(agentcore.RoleHistorian)
	require.True(t, ok)
	assert.Contains(t, f.KeyFindings, "Lobengula")
}

func TestValidatorWaitsForSiblingFindingsAndWeighsConfidence(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("img"))
	ac.SetOCR("x", "y")
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 100})

	validator := agentcore.NewBaseAgent(&Validator{Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 50})

	resultCh := make(chan []agentcore.Message, 1)
	go func() {
		resultCh <- collectMessages(context.Background(), validator, ac)
	}()

	// Validator must block until these are set; give it a moment to prove
	// it is actually waiting rather than racing ahead.
	time.Sleep(20 * time.Millisecond)
	ac.SetFinding(agentcore.RoleLinguist, agentcore.Finding{Confidence: 100})
	ac.SetFinding(agentcore.RoleHistorian, agentcore.Finding{Confidence: 100, Artifacts: map[string]any{"era_estimate": "~1870-1894"}})

	msgs := <-resultCh
	last := msgs[len(msgs)-1]
	// Scanner/Linguist/Historian all 100, validator's own fallback confidence 50:
	// 0.35*100 + 0.20*100 + 0.25*100 + 0.20*50 = 90
	assert.Equal(t, 90, *last.Confidence)

	overall, ok := ac.OverallConfidence()
	require.True(t, ok)
	assert.Equal(t, 90, overall)
}

func TestValidatorAbortsOnCancellationWithoutCompletion(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("img"))
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 100})

	ctx, cancel := context.WithCancel(context.Background())
	validator := agentcore.NewBaseAgent(&Validator{Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 50})

	ch := validator.Process(ctx, ac)
	msgs := []agentcore.Message{<-ch} // activation
	cancel()
	for m := range ch {
		msgs = append(msgs, m)
	}

	for _, m := range msgs {
		assert.NotEqual(t, agentcore.KindCompletion, m.Kind)
	}
}

func TestRepairAdvisorFallbackUsesEnhancementHeuristic(t *testing.T) {
	ac := agentcore.NewAnalysisContext([]byte("img"))
	ac.SetEnhancement("", []string{"denoise"})
	ac.SetFinding(agentcore.RoleScanner, agentcore.Finding{Confidence: 80})

	advisor := agentcore.NewBaseAgent(&RepairAdvisor{Reference: testTables(), Invoker: newInvoker(invoker.NoopBackend{}), Model: "m", MaxTokens: 50})
	collectMessages(context.Background(), advisor, ac)

	hotspots := ac.DamageHotspots()
	require.Len(t, hotspots, 1)
	assert.Equal(t, "surface_noise", hotspots[0].DamageType)
	assert.Contains(t, ac.RepairRecommendations(), "gentle dry cleaning")
}
