// Package bus implements the gateway's per-agent inboxes (ordered streams +
// consumer groups) and topic pub/sub (C6 of the gateway core).
package bus

import (
	"context"
	"time"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// QueueStatus reports an inbox's pending depth and consumer-group info
// (§6 `fabric.message.queue_status`; supplemented with group lag per
// SPEC_FULL.md Part E).
type QueueStatus struct {
	AgentID         string `json:"agent_id"`
	QueueDepth      int    `json:"queue_depth"`
	PendingCount    int    `json:"pending_count"`
	LastDeliveredID string `json:"last_delivered_id,omitempty"`
}

// AckResult reports whether one id was acknowledged.
type AckResult struct {
	ID     string `json:"id"`
	Acked  bool   `json:"acked"`
}

// Bus is the storage-variant-agnostic contract the pipeline depends on.
// Both the in-memory and Redis Streams variants satisfy it identically.
type Bus interface {
	// Send appends msg to inbox(msg.ToAgent), returning the stream entry id
	// assigned by the store.
	Send(ctx context.Context, msg fabric.Message) (streamEntryID string, err error)

	// Receive ensures group exists on inbox(agentID), then reads up to count
	// pending entries in age order, blocking up to blockDur for new entries
	// if none are pending.
	Receive(ctx context.Context, agentID, group string, count int, blockDur time.Duration) ([]fabric.Message, error)

	// Acknowledge marks entries delivered; an id may be either a stream entry
	// id or a message_id (§9 Open Questions / SPEC_FULL Part B).
	Acknowledge(ctx context.Context, agentID, group string, ids []string) ([]AckResult, error)

	// Publish broadcasts to current subscribers of topic without persisting,
	// returning the number of recipients reached.
	Publish(ctx context.Context, topic string, data map[string]interface{}, from string) (recipients int, err error)

	// QueueStatus reports pending length and group info for agentID's inbox.
	QueueStatus(ctx context.Context, agentID, group string) (QueueStatus, error)

	Close() error
}

// DefaultGroup derives the default consumer group name for an agent per
// §4.6's key layout: "{agent_id}_workers".
func DefaultGroup(agentID string) string {
	return agentID + "_workers"
}

// DefaultVisibilityHorizon is the redelivery window from §4.6.
const DefaultVisibilityHorizon = 30 * time.Second
