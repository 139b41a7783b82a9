// Package agents implements the five concrete restoration roles on top of
// agentcore.BaseAgent: Scanner, Linguist, Historian, Validator, and
// RepairAdvisor.
package agents

import (
	"context"
	"time"
)

// Overall-confidence weights the Validator applies when combining every
// role's confidence into one score.
const (
	WeightScanner   = 0.35
	WeightLinguist  = 0.20
	WeightHistorian = 0.25
	WeightValidator = 0.20
)

const defaultCallBudget = 20 * time.Second

// maxUserInputChars is the invoker's documented precondition: every caller
// truncates user_input to at most this many characters before Invoke.
const maxUserInputChars = 1500

// truncateUserInput enforces the invoker's pre-truncation precondition.
func truncateUserInput(s string) string {
	if len(s) <= maxUserInputChars {
		return s
	}
	return s[:maxUserInputChars]
}

// deadlineFor returns ctx's deadline if it has one, else a conservative
// default so a model call made outside a deadline-bearing stage context
// (e.g. in a unit test) still terminates.
func deadlineFor(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(defaultCallBudget)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
