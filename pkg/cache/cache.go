// Package cache implements the content-addressed deduplication cache with
// single-flight semantics: a submission whose image hash is already being
// processed joins the in-flight run instead of starting a second one, and a
// submission whose hash already completed gets the cached result
// immediately.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
)

// CompletionEvent is the terminal event every caller of GetOrStart
// eventually receives on its Events channel: the primary caller after
// draining every intermediate Message, a late subscriber as the only thing
// it ever sees, and a cache hit as the sole event on its stream.
type CompletionEvent struct {
	Cached bool
	Result agentcore.ResurrectionResult
	Err    error
}

// completionEventWire is the wire shape for CompletionEvent: a fixed "type"
// discriminator alongside the cached flag and result, matching the other
// event kinds on the SSE stream. Err never serializes — a failed run is
// reported to the caller in-process, not over the wire.
type completionEventWire struct {
	Type   string                       `json:"type"`
	Cached bool                         `json:"cached"`
	Result agentcore.ResurrectionResult `json:"result"`
}

// MarshalJSON renders CompletionEvent as {"type":"complete","cached":...,
// "result":...} for the streaming sink.
func (e CompletionEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(completionEventWire{Type: "complete", Cached: e.Cached, Result: e.Result})
}

// Event is one item on the stream GetOrStart returns: either a forwarded
// pipeline Message (Message != nil) or the terminal CompletionEvent
// (Complete != nil), never both.
type Event struct {
	Message  *agentcore.Message
	Complete *CompletionEvent
}

// PipelineRun is what Starter returns: a live message stream plus a
// blocking accessor for the final result, called only after Messages has
// been fully drained (closed).
type PipelineRun struct {
	Messages <-chan agentcore.Message
	Result   func() (*agentcore.ResurrectionResult, error)
}

// Starter begins a brand new pipeline run for a cache miss.
type Starter func(ctx context.Context) *PipelineRun

type state int

const (
	stateInFlight state = iota
	stateReady
)

type handle struct {
	done   chan struct{}
	result *agentcore.ResurrectionResult
	err    error
}

type entry struct {
	state   state
	handle  *handle
	result  *agentcore.ResurrectionResult
	lruElem *list.Element
}

// Cache is the process-wide dedup cache. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      *list.List // LRU of Ready hashes, front = most recently used
	maxEntries int

	hits, misses, joins prometheus.Counter
	evictions           prometheus.Counter
}

// New builds a Cache holding at most maxEntries Ready results. registry may
// be nil to skip Prometheus registration.
func New(maxEntries int, registry *prometheus.Registry) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		order:      list.New(),
		maxEntries: maxEntries,
	}
	if registry != nil {
		c.hits = prometheus.NewCounter(prometheus.CounterOpts{Name: "resurrection_cache_hits_total", Help: "Submissions served from a completed cache entry."})
		c.misses = prometheus.NewCounter(prometheus.CounterOpts{Name: "resurrection_cache_misses_total", Help: "Submissions that started a new pipeline run."})
		c.joins = prometheus.NewCounter(prometheus.CounterOpts{Name: "resurrection_cache_joins_total", Help: "Submissions that joined an in-flight pipeline run."})
		c.evictions = prometheus.NewCounter(prometheus.CounterOpts{Name: "resurrection_cache_evictions_total", Help: "Ready entries evicted by LRU."})
		registry.MustRegister(c.hits, c.misses, c.joins, c.evictions)
	}
	return c
}

// GetOrStart returns the stream for hash: a cache hit yields exactly one
// CompletionEvent; joining an in-flight run yields exactly one
// CompletionEvent once that run finishes (no intermediate messages); a
// cache miss starts run and forwards every Message plus the final
// CompletionEvent. If ctx is cancelled before a stream would otherwise
// complete, that stream closes with no CompletionEvent at all; a primary
// caller's cancellation also removes the in-flight entry so a later
// resubmission is not stuck joining a dead run.
func (c *Cache) GetOrStart(ctx context.Context, hash string, start Starter) <-chan Event {
	c.mu.Lock()
	if e, ok := c.entries[hash]; ok {
		switch e.state {
		case stateReady:
			c.order.MoveToFront(e.lruElem)
			result := *e.result
			c.mu.Unlock()
			c.inc(c.hits)
			return readyStream(result)
		case stateInFlight:
			h := e.handle
			c.mu.Unlock()
			c.inc(c.joins)
			return joinStream(ctx, h)
		}
	}

	h := &handle{done: make(chan struct{})}
	c.entries[hash] = &entry{state: stateInFlight, handle: h}
	c.mu.Unlock()
	c.inc(c.misses)

	return c.primaryStream(ctx, hash, h, start)
}

func (c *Cache) inc(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}

func readyStream(result agentcore.ResurrectionResult) <-chan Event {
	out := make(chan Event, 1)
	out <- Event{Complete: &CompletionEvent{Cached: true, Result: result}}
	close(out)
	return out
}

func joinStream(ctx context.Context, h *handle) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		select {
		case <-h.done:
			if h.err == nil {
				out <- Event{Complete: &CompletionEvent{Cached: false, Result: *h.result}}
			}
		case <-ctx.Done():
		}
	}()
	return out
}

func (c *Cache) primaryStream(ctx context.Context, hash string, h *handle, start Starter) <-chan Event {
	run := start(ctx)
	out := make(chan Event)

	go func() {
		defer close(out)

		for msg := range run.Messages {
			m := msg
			select {
			case out <- Event{Message: &m}:
			case <-ctx.Done():
				c.abort(hash, h, ctx.Err())
				drain(run.Messages)
				return
			}
		}

		if ctx.Err() != nil {
			// Cancelled while no message was pending: the run's stream closed
			// because of the cancellation, so there is no result to seal.
			c.abort(hash, h, ctx.Err())
			return
		}

		result, err := run.Result()
		h.result, h.err = result, err
		close(h.done)

		if err != nil {
			c.mu.Lock()
			delete(c.entries, hash)
			c.mu.Unlock()
			out <- Event{Complete: &CompletionEvent{Err: err}}
			return
		}

		c.promote(hash, result)
		out <- Event{Complete: &CompletionEvent{Cached: false, Result: *result}}
	}()

	return out
}

// drain consumes any remaining messages so the producing goroutine (the
// orchestrator run) is never left blocked sending to a channel nobody reads.
func drain(messages <-chan agentcore.Message) {
	for range messages {
	}
}

func (c *Cache) abort(hash string, h *handle, err error) {
	c.mu.Lock()
	delete(c.entries, hash)
	c.mu.Unlock()
	h.err = err
	close(h.done)
}

func (c *Cache) promote(hash string, result *agentcore.ResurrectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[hash]
	if !ok {
		// Entry was removed (e.g. aborted concurrently); nothing to promote.
		return
	}
	e.state = stateReady
	e.result = result
	e.lruElem = c.order.PushFront(hash)

	for c.order.Len() > c.maxEntries && c.maxEntries > 0 {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(string))
		c.inc(c.evictions)
	}
}

// Stats reports cache occupancy for the aux cache-stats endpoint.
type Stats struct {
	ReadyEntries   int
	InFlightCount  int
	MaxEntries     int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{MaxEntries: c.maxEntries}
	for _, e := range c.entries {
		if e.state == stateReady {
			stats.ReadyEntries++
		} else {
			stats.InFlightCount++
		}
	}
	return stats
}

// Lookup returns a Ready entry by hash without affecting its LRU position,
// for the archive-lookup endpoint. It never starts work.
func (c *Cache) Lookup(hash string) (agentcore.ResurrectionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	if !ok || e.state != stateReady {
		return agentcore.ResurrectionResult{}, false
	}
	return *e.result, true
}
