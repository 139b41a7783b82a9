package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
)

const relayBufferDepth = 8

// runStageB dispatches the three parallel roles under their own deadlines,
// relays each into a bounded buffer (§4.5's "held in a bounded buffer"),
// and merges the three buffers into one timestamp-ordered stream. Both the
// relay and merge goroutines also select on parent's cancellation around
// their sends, not just their reads, so a consumer that stops draining the
// merged stream on cancellation (as runStageBInto does) cannot leave either
// stranded forever on a channel nobody is reading anymore. The returned
// cleanup func cancels all three stage contexts and waits for the relay
// goroutines to exit.
func runStageB(parent context.Context, ac *agentcore.AnalysisContext, linguist, historian, validator agentcore.Agent, deadlines [3]time.Duration) (<-chan agentcore.Message, func()) {
	lctx, lcancel := context.WithTimeout(parent, deadlines[0])
	hctx, hcancel := context.WithTimeout(parent, deadlines[1])
	vctx, vcancel := context.WithTimeout(parent, deadlines[2])

	lbuf := make(chan agentcore.Message, relayBufferDepth)
	hbuf := make(chan agentcore.Message, relayBufferDepth)
	vbuf := make(chan agentcore.Message, relayBufferDepth)

	var g errgroup.Group
	g.Go(func() error { relay(parent, linguist.Process(lctx, ac), lbuf); return nil })
	g.Go(func() error { relay(parent, historian.Process(hctx, ac), hbuf); return nil })
	g.Go(func() error { relay(parent, validator.Process(vctx, ac), vbuf); return nil })

	merged := mergeThree(parent, lbuf, hbuf, vbuf, agentcore.StageBPriority)

	cleanup := func() {
		lcancel()
		hcancel()
		vcancel()
		_ = g.Wait()
	}
	return merged, cleanup
}

func relay(ctx context.Context, in <-chan agentcore.Message, out chan<- agentcore.Message) {
	defer close(out)
	for m := range in {
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}
