// Package sink implements the Streaming Sink: it turns a cache.Event stream
// into wire events for a caller, synchronously and with back-pressure — a
// stalled transport blocks the producing pipeline at its next emit rather
// than buffering unboundedly.
package sink

import (
	"encoding/json"
	"io"

	"github.com/nhaka-archive/resurrection/pkg/cache"
)

// WireEvent is the JSON shape written for both message and completion
// events; Type distinguishes them on the wire.
type WireEvent struct {
	Type     string      `json:"type"`
	Message  interface{} `json:"message,omitempty"`
	Complete interface{} `json:"complete,omitempty"`
}

// WriterSink streams events as newline-delimited JSON to an io.Writer. It
// is the non-Gin sink used by tests and by any transport that isn't HTTP
// SSE.
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

// Stream writes every event from events to the sink's writer in order,
// synchronously, so a slow or blocked writer naturally back-pressures the
// producer. It returns the first write error encountered, if any; in that
// case it stops forwarding and drains the remainder of events so the
// producer is never left blocked.
func (s *WriterSink) Stream(events <-chan cache.Event) error {
	var firstErr error
	for evt := range events {
		if firstErr != nil {
			continue
		}
		if err := s.write(evt); err != nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *WriterSink) write(evt cache.Event) error {
	var wire WireEvent
	switch {
	case evt.Message != nil:
		wire = WireEvent{Type: "message", Message: evt.Message}
	case evt.Complete != nil:
		wire = WireEvent{Type: "complete", Complete: evt.Complete}
	default:
		return nil
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	_, err = s.w.Write(encoded)
	return err
}
