package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhaka-archive/resurrection/pkg/agentcore"
)

func chanOf(msgs ...agentcore.Message) <-chan agentcore.Message {
	ch := make(chan agentcore.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func TestMergeThreeOrdersByTimestamp(t *testing.T) {
	base := time.Now()
	a := chanOf(agentcore.Message{Role: agentcore.RoleLinguist, Timestamp: base.Add(3 * time.Millisecond)})
	b := chanOf(agentcore.Message{Role: agentcore.RoleHistorian, Timestamp: base.Add(1 * time.Millisecond)})
	c := chanOf(agentcore.Message{Role: agentcore.RoleValidator, Timestamp: base.Add(2 * time.Millisecond)})

	var order []agentcore.Role
	for m := range mergeThree(context.Background(), a, b, c, agentcore.StageBPriority) {
		order = append(order, m.Role)
	}

	require.Len(t, order, 3)
	assert.Equal(t, []agentcore.Role{agentcore.RoleHistorian, agentcore.RoleValidator, agentcore.RoleLinguist}, order)
}

func TestMergeThreeBreaksTiesByPriority(t *testing.T) {
	ts := time.Now()
	a := chanOf(agentcore.Message{Role: agentcore.RoleLinguist, Timestamp: ts})
	b := chanOf(agentcore.Message{Role: agentcore.RoleHistorian, Timestamp: ts})
	c := chanOf(agentcore.Message{Role: agentcore.RoleValidator, Timestamp: ts})

	var order []agentcore.Role
	for m := range mergeThree(context.Background(), a, b, c, agentcore.StageBPriority) {
		order = append(order, m.Role)
	}

	assert.Equal(t, []agentcore.Role{agentcore.RoleLinguist, agentcore.RoleHistorian, agentcore.RoleValidator}, order)
}

func TestMergeThreeHandlesUnevenChannelLengths(t *testing.T) {
	base := time.Now()
	a := chanOf(
		agentcore.Message{Role: agentcore.RoleLinguist, Timestamp: base},
		agentcore.Message{Role: agentcore.RoleLinguist, Timestamp: base.Add(10 * time.Millisecond)},
	)
	b := chanOf(agentcore.Message{Role: agentcore.RoleHistorian, Timestamp: base.Add(5 * time.Millisecond)})
	c := chanOf()

	var order []agentcore.Role
	for m := range mergeThree(context.Background(), a, b, c, agentcore.StageBPriority) {
		order = append(order, m.Role)
	}

	assert.Equal(t, []agentcore.Role{agentcore.RoleLinguist, agentcore.RoleHistorian, agentcore.RoleLinguist}, order)
}

func TestMergeThreeExitsOnCancellationInsteadOfBlockingForever(t *testing.T) {
	a := chanOf(agentcore.Message{Role: agentcore.RoleLinguist, Timestamp: time.Now()})
	b := chanOf()
	c := chanOf()

	ctx, cancel := context.WithCancel(context.Background())
	merged := mergeThree(ctx, a, b, c, agentcore.StageBPriority)

	// Nothing reads merged, so the goroutine is stuck trying to send its one
	// pending message. Cancelling ctx must still unblock and close it rather
	// than leaking forever.
	cancel()

	select {
	case _, ok := <-merged:
		assert.False(t, ok, "merged must close on cancellation without delivering the pending message")
	case <-time.After(time.Second):
		t.Fatal("mergeThree goroutine leaked: merged never closed after cancellation")
	}
}
