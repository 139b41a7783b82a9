package sink

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/cache"
)

// TestWriteSSEEventCompleteFrameIsFlatJSON exercises the actual production
// path (writeFrame -> json.Marshal(evt.Complete)) rather than WriterSink's
// WireEvent wrapper, and asserts the SSE "complete" frame's data payload is
// the flat {"type":"complete","cached":...,"result":{...}} shape.
func TestWriteSSEEventCompleteFrameIsFlatJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	evt := cache.Event{Complete: &cache.CompletionEvent{
		Cached: false,
		Result: agentcore.ResurrectionResult{OverallConfidence: 77},
	}}
	require.True(t, writeSSEEvent(c, evt))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "event: complete\n"))

	_, data, found := strings.Cut(strings.TrimSuffix(body, "\n\n"), "data: ")
	require.True(t, found)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &decoded))

	assert.Equal(t, "complete", decoded["type"])
	assert.Equal(t, false, decoded["cached"])
	assert.NotContains(t, decoded, "Err")
	assert.NotContains(t, decoded, "Cached")
	assert.NotContains(t, decoded, "Result")

	result, ok := decoded["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(77), result["overall_confidence"])
}
