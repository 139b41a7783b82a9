package agentcore

import (
	"context"
	"fmt"
	"time"
)

// Agent is the uniform contract every restoration role implements: drive the
// shared context forward and stream the messages produced along the way.
// The returned channel is closed once the role is done (or cancelled) and
// is never written to after the goroutine backing it exits.
type Agent interface {
	Role() Role
	Process(ctx context.Context, ac *AnalysisContext) <-chan Message
}

// Outcome is what a Core returns once its work (model call or fallback) is
// finished. BaseAgent turns it into the completion message.
type Outcome struct {
	Text       string
	Confidence int
	Section    string
	Metadata   map[string]any
}

// Core is the role-specific logic BaseAgent wraps: read the context, do the
// work (possibly emitting intermediate messages along the way), and return
// the outcome to report as the completion message. Core must not emit its
// own activation or completion message — BaseAgent owns message framing.
type Core interface {
	Role() Role
	Run(ctx context.Context, ac *AnalysisContext, emit Emitter) Outcome
}

// BaseAgent enforces the shared message-framing contract around a Core: the
// first message on the stream is always activation, the last is always
// completion (unless the run is cancelled, in which case there is no
// completion at all), and every message carries a timestamp strictly after
// the one before it.
type BaseAgent struct {
	core Core
}

// NewBaseAgent wraps core. It panics on a nil core the same way the
// contract it replaces panics on a nil controller: a role with no logic is
// a programming error, not a runtime condition to recover from.
func NewBaseAgent(core Core) *BaseAgent {
	if core == nil {
		panic("agentcore: NewBaseAgent called with nil core")
	}
	return &BaseAgent{core: core}
}

func (b *BaseAgent) Role() Role { return b.core.Role() }

func (b *BaseAgent) Process(ctx context.Context, ac *AnalysisContext) <-chan Message {
	out := make(chan Message)
	go b.run(ctx, ac, out)
	return out
}

func (b *BaseAgent) run(ctx context.Context, ac *AnalysisContext, out chan<- Message) {
	defer close(out)

	role := b.core.Role()
	var last time.Time

	send := func(kind Kind, text string, opts []Option) bool {
		ts := time.Now()
		if !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
		last = ts

		m := Message{Role: role, Kind: kind, Text: text, Timestamp: ts}
		for _, opt := range opts {
			opt(&m)
		}

		select {
		case out <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(KindActivation, fmt.Sprintf("%s activated", role), nil) {
		return
	}

	emit := func(text string, opts ...Option) bool {
		return send(KindIntermediate, text, opts)
	}

	outcome := b.core.Run(ctx, ac, emit)
	if ctx.Err() != nil {
		// Cancelled mid-run: the contract forbids a completion message here.
		return
	}

	opts := []Option{WithConfidence(outcome.Confidence)}
	if outcome.Section != "" {
		opts = append(opts, WithSection(outcome.Section))
	}
	for k, v := range outcome.Metadata {
		opts = append(opts, WithMetadata(k, v))
	}
	send(KindCompletion, outcome.Text, opts)
}
