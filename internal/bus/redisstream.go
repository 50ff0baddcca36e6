package bus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// redisConsumer is the fixed consumer name every gateway instance reads
// under; the bus does not need per-instance identity since XCLAIM handles
// redelivery across instances via the visibility horizon.
const redisConsumer = "gateway"

// RedisBus is the durable Bus variant backed by Redis Streams for inboxes
// and Redis Pub/Sub for topics (§4.6; grounded on the pack's redis usage
// for queueing, adapted to XADD/XREADGROUP/XACK/XPENDING/XCLAIM).
type RedisBus struct {
	client  *redis.Client
	horizon time.Duration
}

// RedisOption configures a RedisBus.
type RedisOption func(*RedisBus)

// WithVisibilityHorizon overrides the default redelivery window.
func WithVisibilityHorizon(d time.Duration) RedisOption {
	return func(b *RedisBus) { b.horizon = d }
}

// NewRedisBus wraps an existing redis client.
func NewRedisBus(client *redis.Client, opts ...RedisOption) *RedisBus {
	b := &RedisBus{client: client, horizon: DefaultVisibilityHorizon}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func streamKey(agentID string) string {
	return "agent:" + agentID + ":inbox"
}

func topicChannel(topic string) string {
	return "fabric:topic:" + topic
}

func (b *RedisBus) Send(ctx context.Context, msg fabric.Message) (string, error) {
	if msg.ToAgent == "" {
		return "", fabric.NewError(fabric.BusUnavailable, "to_agent is required")
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fabric.NewError(fabric.InternalError, "failed to encode message").WithDetail("cause", err.Error())
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(msg.ToAgent),
		Values: map[string]interface{}{
			"payload":    payload,
			"message_id": msg.MessageID,
		},
	}).Result()
	if err != nil {
		return "", fabric.NewError(fabric.BusUnavailable, "redis xadd failed").WithDetail("cause", err.Error())
	}
	return id, nil
}

func (b *RedisBus) ensureGroup(ctx context.Context, agentID, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, streamKey(agentID), group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *RedisBus) Receive(ctx context.Context, agentID, group string, count int, blockDur time.Duration) ([]fabric.Message, error) {
	if count <= 0 {
		count = 10
	}
	if err := b.ensureGroup(ctx, agentID, group); err != nil {
		return nil, fabric.NewError(fabric.BusUnavailable, "failed to create consumer group").WithDetail("cause", err.Error())
	}

	reclaimed, err := b.reclaimStale(ctx, agentID, group, count)
	if err != nil {
		return nil, err
	}
	if len(reclaimed) >= count {
		return reclaimed[:count], nil
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: redisConsumer,
		Streams:  []string{streamKey(agentID), ">"},
		Count:    int64(count - len(reclaimed)),
		Block:    blockDur,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fabric.NewError(fabric.BusUnavailable, "redis xreadgroup failed").WithDetail("cause", err.Error())
	}

	out := reclaimed
	for _, stream := range res {
		for _, xmsg := range stream.Messages {
			if m, ok := decodeXMessage(xmsg); ok {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (b *RedisBus) reclaimStale(ctx context.Context, agentID, group string, count int) ([]fabric.Message, error) {
	claimed, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamKey(agentID),
		Group:    group,
		Consumer: redisConsumer,
		MinIdle:  b.horizon,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil {
		if strings.Contains(err.Error(), "NOGROUP") {
			return nil, nil
		}
		return nil, fabric.NewError(fabric.BusUnavailable, "redis xautoclaim failed").WithDetail("cause", err.Error())
	}
	out := make([]fabric.Message, 0, len(claimed))
	for _, xmsg := range claimed {
		if m, ok := decodeXMessage(xmsg); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func decodeXMessage(xmsg redis.XMessage) (fabric.Message, bool) {
	raw, ok := xmsg.Values["payload"]
	if !ok {
		return fabric.Message{}, false
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fabric.Message{}, false
	}
	var m fabric.Message
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return fabric.Message{}, false
	}
	m.StreamEntryID = xmsg.ID
	return m, true
}

func (b *RedisBus) Acknowledge(ctx context.Context, agentID, group string, ids []string) ([]AckResult, error) {
	results := make([]AckResult, 0, len(ids))
	for _, id := range ids {
		resolved := id
		if strings.Count(id, "-") != 1 {
			// not of the "<ms>-<seq>" stream entry id form, so treat it as a
			// message_id; resolve it by scanning the pending entries list for
			// an entry whose message_id field matches.
			if sid, ok := b.resolveMessageID(ctx, agentID, group, id); ok {
				resolved = sid
			}
		}
		n, err := b.client.XAck(ctx, streamKey(agentID), group, resolved).Result()
		if err != nil {
			return results, fabric.NewError(fabric.BusUnavailable, "redis xack failed").WithDetail("cause", err.Error())
		}
		results = append(results, AckResult{ID: id, Acked: n > 0})
	}
	return results, nil
}

func (b *RedisBus) resolveMessageID(ctx context.Context, agentID, group, messageID string) (string, bool) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: streamKey(agentID),
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1000,
	}).Result()
	if err != nil {
		return "", false
	}
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return "", false
	}
	entries, err := b.client.XRange(ctx, streamKey(agentID), ids[0], ids[len(ids)-1]).Result()
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if mid, ok := e.Values["message_id"]; ok && mid == messageID {
			return e.ID, true
		}
	}
	return "", false
}

func (b *RedisBus) Publish(ctx context.Context, topic string, data map[string]interface{}, from string) (int, error) {
	msg := fabric.Message{
		MessageID:   uuid.NewString(),
		FromAgent:   from,
		MessageType: "topic",
		Payload:     data,
		Timestamp:   time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fabric.NewError(fabric.InternalError, "failed to encode message").WithDetail("cause", err.Error())
	}
	n, err := b.client.Publish(ctx, topicChannel(topic), payload).Result()
	if err != nil {
		return 0, fabric.NewError(fabric.BusUnavailable, "redis publish failed").WithDetail("cause", err.Error())
	}
	return int(n), nil
}

func (b *RedisBus) QueueStatus(ctx context.Context, agentID, group string) (QueueStatus, error) {
	length, err := b.client.XLen(ctx, streamKey(agentID)).Result()
	if err != nil {
		return QueueStatus{}, fabric.NewError(fabric.BusUnavailable, "redis xlen failed").WithDetail("cause", err.Error())
	}
	summary, err := b.client.XPending(ctx, streamKey(agentID), group).Result()
	pendingCount := 0
	if err == nil && summary != nil {
		pendingCount = int(summary.Count)
	}
	last := ""
	groups, err := b.client.XInfoGroups(ctx, streamKey(agentID)).Result()
	if err == nil {
		for _, g := range groups {
			if g.Name == group {
				last = g.LastDeliveredID
				break
			}
		}
	}
	return QueueStatus{
		AgentID:         agentID,
		QueueDepth:      int(length),
		PendingCount:    pendingCount,
		LastDeliveredID: last,
	}, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Subscribe relays topic messages onto ch until ctx is cancelled or the
// returned unsubscribe func is called; it runs the relay loop in its own
// goroutine so callers don't block on Redis pub/sub delivery.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, ch chan fabric.Message) (unsubscribe func()) {
	pubsub := b.client.Subscribe(ctx, topicChannel(topic))
	done := make(chan struct{})

	go func() {
		defer pubsub.Close()
		recv := pubsub.Channel()
		for {
			select {
			case m, ok := <-recv:
				if !ok {
					return
				}
				var msg fabric.Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				select {
				case ch <- msg:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() { close(done) }
}

// TopicsCtx lists topics with currently-subscribed clients, via Redis's
// PUBSUB CHANNELS introspection.
func (b *RedisBus) TopicsCtx(ctx context.Context) ([]string, error) {
	channels, err := b.client.PubSubChannels(ctx, topicChannel("*")).Result()
	if err != nil {
		return nil, fabric.NewError(fabric.BusUnavailable, "redis pubsub channels failed").WithDetail("cause", err.Error())
	}
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, strings.TrimPrefix(c, "fabric:topic:"))
	}
	return out, nil
}
