package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/agents"
	"github.com/nhaka-archive/resurrection/pkg/budget"
	"github.com/nhaka-archive/resurrection/pkg/enhancement"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
	"github.com/nhaka-archive/resurrection/pkg/reference"
)

func testOrchestrator() *Orchestrator {
	ledger := budget.New(1000, nil)
	cfg := invoker.Config{Pricing: map[string]invoker.ModelPricing{"m": {CostPerInputToken: 0.001, CostPerOutputToken: 0.001}}}
	inv := invoker.New(invoker.NoopBackend{}, ledger, cfg, nil, nil)
	tables := &reference.Tables{
		CharacterMap:      []reference.CharacterMapping{{From: "0", To: "o"}},
		HistoricalFigures: []reference.HistoricalFigure{{Name: "Lobengula", Keywords: []string{"lobengula"}}},
		DamageTaxonomy:    []reference.DamageType{{Name: "surface_noise", Description: "grime", Recommendation: "dry clean"}},
	}

	scanner := agentcore.NewBaseAgent(&agents.Scanner{Enhancer: enhancement.HeuristicEnhancer{}, Invoker: inv, Model: "m", MaxTokens: 50})
	linguist := agentcore.NewBaseAgent(&agents.Linguist{Reference: tables, Invoker: inv, Model: "m", MaxTokens: 50})
	historian := agentcore.NewBaseAgent(&agents.Historian{Reference: tables, Invoker: inv, Model: "m", MaxTokens: 50})
	validator := agentcore.NewBaseAgent(&agents.Validator{Invoker: inv, Model: "m", MaxTokens: 50})
	repair := agentcore.NewBaseAgent(&agents.RepairAdvisor{Reference: tables, Invoker: inv, Model: "m", MaxTokens: 50})

	deadlines := Deadlines{
		Scanner: 2 * time.Second, Linguist: 2 * time.Second, Historian: 2 * time.Second,
		Validator: 2 * time.Second, RepairAdvisor: 2 * time.Second,
	}
	return New(scanner, linguist, historian, validator, repair, deadlines)
}

func TestFullPipelineRunSealsResult(t *testing.T) {
	o := testOrchestrator()
	ac := agentcore.NewAnalysisContext([]byte("a fairly long sample of scanned manuscript bytes"))

	run := o.Run(context.Background(), ac)

	var roles []agentcore.Role
	for m := range run.Messages {
		roles = append(roles, m.Role)
	}
	result, err := run.Result()
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, roles)
	assert.Equal(t, agentcore.RoleScanner, roles[0], "Scanner must activate first")
	assert.Equal(t, agentcore.RoleRepairAdvisor, roles[len(roles)-1], "RepairAdvisor must complete last")
}

func TestStageAPrecedesStageBPrecedesStageC(t *testing.T) {
	o := testOrchestrator()
	ac := agentcore.NewAnalysisContext([]byte("some manuscript content about Lobengula"))
	run := o.Run(context.Background(), ac)

	var roles []agentcore.Role
	for m := range run.Messages {
		roles = append(roles, m.Role)
	}
	_, err := run.Result()
	require.NoError(t, err)

	lastScanner, firstStageB, lastStageB, firstRepair := -1, -1, -1, -1
	for i, r := range roles {
		switch r {
		case agentcore.RoleScanner:
			lastScanner = i
		case agentcore.RoleLinguist, agentcore.RoleHistorian, agentcore.RoleValidator:
			if firstStageB == -1 {
				firstStageB = i
			}
			lastStageB = i
		case agentcore.RoleRepairAdvisor:
			if firstRepair == -1 {
				firstRepair = i
			}
		}
	}

	require.NotEqual(t, -1, lastScanner)
	require.NotEqual(t, -1, firstStageB)
	require.NotEqual(t, -1, firstRepair)
	assert.Less(t, lastScanner, firstStageB)
	assert.Less(t, lastStageB, firstRepair)
}

func TestFirstStageBMessageIsMarkedCollaboration(t *testing.T) {
	o := testOrchestrator()
	ac := agentcore.NewAnalysisContext([]byte("manuscript bytes"))
	run := o.Run(context.Background(), ac)

	var sawStageBCollab bool
	seenStageB := false
	for m := range run.Messages {
		if !seenStageB && (m.Role == agentcore.RoleLinguist || m.Role == agentcore.RoleHistorian || m.Role == agentcore.RoleValidator) {
			sawStageBCollab = m.Collaboration
			seenStageB = true
		}
	}
	_, err := run.Result()
	require.NoError(t, err)
	assert.True(t, sawStageBCollab)
}

func TestCancellationStopsPipelineWithoutResult(t *testing.T) {
	o := testOrchestrator()
	ac := agentcore.NewAnalysisContext([]byte("manuscript bytes"))
	ctx, cancel := context.WithCancel(context.Background())

	run := o.Run(ctx, ac)
	cancel()
	for range run.Messages {
	}
	result, err := run.Result()
	assert.Error(t, err)
	assert.Nil(t, result)
}
