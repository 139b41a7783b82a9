package orchestrator

import (
	"context"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
)

// headSlot tracks one Stage-B agent's next unconsumed message, letting
// mergeThree choose the globally-earliest message across all three
// channels without reflect-based generic fan-in (Stage B's fan-out degree
// is fixed at exactly three, so three named channels are simpler and
// clearer than an n-way generic merge would be).
type headSlot struct {
	ch  <-chan agentcore.Message
	msg *agentcore.Message
}

func (s *headSlot) fill() {
	m, ok := <-s.ch
	if !ok {
		s.msg = nil
		return
	}
	mm := m
	s.msg = &mm
}

// mergeThree yields messages from a, b, c in non-decreasing timestamp
// order, breaking exact timestamp ties with priority (lower sorts first).
// It closes its output once all three input channels are closed, or the
// moment ctx is cancelled — without that second exit, a consumer that stops
// reading out on cancellation (as runStageBInto does) leaves this goroutine
// blocked forever on the next send.
func mergeThree(ctx context.Context, a, b, c <-chan agentcore.Message, priority map[agentcore.Role]int) <-chan agentcore.Message {
	out := make(chan agentcore.Message)
	go func() {
		defer close(out)

		slots := [3]*headSlot{{ch: a}, {ch: b}, {ch: c}}
		for _, s := range slots {
			s.fill()
		}

		for {
			best := -1
			for i, s := range slots {
				if s.msg == nil {
					continue
				}
				if best == -1 {
					best = i
					continue
				}
				bm, sm := slots[best].msg, s.msg
				if sm.Timestamp.Before(bm.Timestamp) {
					best = i
				} else if sm.Timestamp.Equal(bm.Timestamp) && priority[sm.Role] < priority[bm.Role] {
					best = i
				}
			}
			if best == -1 {
				return
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- *slots[best].msg:
			case <-ctx.Done():
				return
			}
			slots[best].fill()
		}
	}()
	return out
}
