package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

func TestMemoryBusSendReceiveAck(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	id, err := b.Send(ctx, fabric.Message{ToAgent: "agent-a", MessageType: "task", Payload: map[string]interface{}{"x": 1}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	group := DefaultGroup("agent-a")
	msgs, err := b.Receive(ctx, "agent-a", group, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].StreamEntryID)

	results, err := b.Acknowledge(ctx, "agent-a", group, []string{id})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Acked)

	status, err := b.QueueStatus(ctx, "agent-a", group)
	require.NoError(t, err)
	assert.Equal(t, 0, status.PendingCount)
}

func TestMemoryBusAckByMessageID(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	_, err := b.Send(ctx, fabric.Message{MessageID: "mid-1", ToAgent: "agent-b"})
	require.NoError(t, err)

	group := DefaultGroup("agent-b")
	msgs, err := b.Receive(ctx, "agent-b", group, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	results, err := b.Acknowledge(ctx, "agent-b", group, []string{"mid-1"})
	require.NoError(t, err)
	assert.True(t, results[0].Acked)
}

func TestMemoryBusInboxIsolation(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	_, err := b.Send(ctx, fabric.Message{ToAgent: "agent-a"})
	require.NoError(t, err)

	msgs, err := b.Receive(ctx, "agent-c", DefaultGroup("agent-c"), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryBusRedeliveryAfterVisibilityHorizon(t *testing.T) {
	b := NewMemoryBus()
	b.horizon = 10 * time.Millisecond
	ctx := context.Background()

	_, err := b.Send(ctx, fabric.Message{ToAgent: "agent-a"})
	require.NoError(t, err)

	group := DefaultGroup("agent-a")
	first, err := b.Receive(ctx, "agent-a", group, 10, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	time.Sleep(20 * time.Millisecond)

	redelivered, err := b.Receive(ctx, "agent-a", group, 10, 0)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, first[0].StreamEntryID, redelivered[0].StreamEntryID)
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	ch := make(chan fabric.Message, 1)
	b.Subscribe("news", ch)
	defer b.Unsubscribe("news", ch)

	n, err := b.Publish(ctx, "news", map[string]interface{}{"headline": "hi"}, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case m := <-ch:
		assert.Equal(t, "agent-a", m.FromAgent)
	default:
		t.Fatal("expected a message on the subscriber channel")
	}
}

func TestMemoryBusPublishNoSubscribers(t *testing.T) {
	b := NewMemoryBus()
	n, err := b.Publish(context.Background(), "empty-topic", nil, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
