package sink

import (
	"encoding/json"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/nhaka-archive/resurrection/pkg/cache"
)

// StreamSSE writes events as Server-Sent Events on c: "event: message" for
// forwarded agent messages, "event: complete" for the terminal event. The
// write to c.Writer happens on the handler's own goroutine, synchronously,
// so Gin's own flush back-pressure propagates straight back to the
// orchestrator producing events — exactly the "stalled transport blocks the
// producing agent" requirement.
func StreamSSE(c *gin.Context, events <-chan cache.Event, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Writer.CloseNotify()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !writeSSEEvent(c, evt) {
				log.Warn("sink: failed writing SSE frame, stopping stream")
				return
			}
			c.Writer.Flush()
		case <-clientGone:
			log.Info("sink: client disconnected, stopping stream")
			return
		}
	}
}

func writeSSEEvent(c *gin.Context, evt cache.Event) bool {
	switch {
	case evt.Message != nil:
		return writeFrame(c, "message", evt.Message)
	case evt.Complete != nil:
		return writeFrame(c, "complete", evt.Complete)
	default:
		return true
	}
}

func writeFrame(c *gin.Context, event string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := c.Writer.WriteString("event: " + event + "\ndata: " + string(data) + "\n\n"); err != nil {
		return false
	}
	return true
}
