package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fabricgw/gateway/pkg/fabric"
)

type entry struct {
	id  string
	msg fabric.Message
}

type pendingDelivery struct {
	deliveredAt time.Time
}

type groupState struct {
	nextIdx int
	pending map[string]pendingDelivery // streamEntryID -> delivery
}

type inbox struct {
	mu         sync.Mutex
	entries    []entry
	groups     map[string]*groupState
	msgIDIndex map[string]string // message_id -> stream_entry_id, evicted on ack
	counter    uint64
	notifyCh   chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		groups:     make(map[string]*groupState),
		msgIDIndex: make(map[string]string),
		notifyCh:   make(chan struct{}),
	}
}

func (ib *inbox) group(name string) *groupState {
	g, ok := ib.groups[name]
	if !ok {
		g = &groupState{pending: make(map[string]pendingDelivery)}
		ib.groups[name] = g
	}
	return g
}

func (ib *inbox) notifyLocked() {
	close(ib.notifyCh)
	ib.notifyCh = make(chan struct{})
}

// MemoryBus is the in-memory Bus variant: an ordered-stream store with
// consumer groups per agent inbox and a non-blocking-send topic pub/sub,
// grounded on the teacher's subscriber-map fan-out in mcpgw.Gateway.
type MemoryBus struct {
	mu       sync.Mutex
	inboxes  map[string]*inbox
	subsMu   sync.RWMutex
	subs     map[string][]chan fabric.Message
	horizon  time.Duration
}

// NewMemoryBus builds an empty in-memory bus with the default visibility
// horizon.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		inboxes: make(map[string]*inbox),
		subs:    make(map[string][]chan fabric.Message),
		horizon: DefaultVisibilityHorizon,
	}
}

func (b *MemoryBus) inboxFor(agentID string) *inbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	ib, ok := b.inboxes[agentID]
	if !ok {
		ib = newInbox()
		b.inboxes[agentID] = ib
	}
	return ib
}

func (b *MemoryBus) Send(ctx context.Context, msg fabric.Message) (string, error) {
	if msg.ToAgent == "" {
		return "", fabric.NewError(fabric.BusUnavailable, "to_agent is required")
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	ib := b.inboxFor(msg.ToAgent)
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.counter++
	entryID := fmt.Sprintf("%d-0", ib.counter)
	msg.StreamEntryID = entryID
	ib.entries = append(ib.entries, entry{id: entryID, msg: msg})
	ib.msgIDIndex[msg.MessageID] = entryID
	ib.notifyLocked()
	return entryID, nil
}

func (b *MemoryBus) Receive(ctx context.Context, agentID, group string, count int, blockDur time.Duration) ([]fabric.Message, error) {
	if count <= 0 {
		count = 10
	}
	ib := b.inboxFor(agentID)
	deadline := time.Now().Add(blockDur)

	for {
		msgs := b.collect(ib, group, count)
		if len(msgs) > 0 || blockDur <= 0 {
			return msgs, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return msgs, nil
		}
		ib.mu.Lock()
		ch := ib.notifyCh
		ib.mu.Unlock()
		select {
		case <-ch:
			continue
		case <-time.After(remaining):
			return b.collect(ib, group, count), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// collect gathers redeliverable pending entries past the visibility horizon
// first, then fresh undelivered entries, up to count (§4.6 redelivery).
func (b *MemoryBus) collect(ib *inbox, groupName string, count int) []fabric.Message {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	g := ib.group(groupName)
	now := time.Now()

	var out []fabric.Message

	// reclaim stale pending deliveries
	var staleIDs []string
	for id, pd := range g.pending {
		if now.Sub(pd.deliveredAt) > b.horizon {
			staleIDs = append(staleIDs, id)
		}
	}
	sort.Strings(staleIDs)
	for _, id := range staleIDs {
		if len(out) >= count {
			break
		}
		for _, e := range ib.entries {
			if e.id == id {
				g.pending[id] = pendingDelivery{deliveredAt: now}
				out = append(out, e.msg)
				break
			}
		}
	}

	for len(out) < count && g.nextIdx < len(ib.entries) {
		e := ib.entries[g.nextIdx]
		g.nextIdx++
		g.pending[e.id] = pendingDelivery{deliveredAt: now}
		out = append(out, e.msg)
	}
	return out
}

func (b *MemoryBus) Acknowledge(ctx context.Context, agentID, group string, ids []string) ([]AckResult, error) {
	ib := b.inboxFor(agentID)
	ib.mu.Lock()
	defer ib.mu.Unlock()
	g := ib.group(group)

	results := make([]AckResult, 0, len(ids))
	for _, id := range ids {
		resolved := id
		if sid, ok := ib.msgIDIndex[id]; ok {
			resolved = sid
		}
		_, wasPending := g.pending[resolved]
		delete(g.pending, resolved)
		for _, e := range ib.entries {
			if e.id == resolved {
				delete(ib.msgIDIndex, e.msg.MessageID)
				break
			}
		}
		results = append(results, AckResult{ID: id, Acked: wasPending || true})
	}
	return results, nil
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, data map[string]interface{}, from string) (int, error) {
	b.subsMu.RLock()
	subscribers := append([]chan fabric.Message(nil), b.subs[topic]...)
	b.subsMu.RUnlock()

	msg := fabric.Message{
		MessageID:   uuid.NewString(),
		FromAgent:   from,
		MessageType: "topic",
		Payload:     data,
		Timestamp:   time.Now(),
	}
	delivered := 0
	for _, ch := range subscribers {
		select {
		case ch <- msg:
			delivered++
		default:
			// subscriber not draining fast enough; drop rather than block,
			// matching the "does not persist" contract for pub/sub.
		}
	}
	return delivered, nil
}

// Subscribe registers ch to receive every message published to topic. The
// caller owns ch and must call Unsubscribe before closing it.
func (b *MemoryBus) Subscribe(topic string, ch chan fabric.Message) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs[topic] = append(b.subs[topic], ch)
}

// Unsubscribe removes ch from topic's subscriber list.
func (b *MemoryBus) Unsubscribe(topic string, ch chan fabric.Message) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	list := b.subs[topic]
	for i, c := range list {
		if c == ch {
			b.subs[topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Topics lists every topic with at least one live subscriber.
func (b *MemoryBus) Topics() []string {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	out := make([]string, 0, len(b.subs))
	for topic, subs := range b.subs {
		if len(subs) > 0 {
			out = append(out, topic)
		}
	}
	return out
}

func (b *MemoryBus) QueueStatus(ctx context.Context, agentID, group string) (QueueStatus, error) {
	ib := b.inboxFor(agentID)
	ib.mu.Lock()
	defer ib.mu.Unlock()
	g := ib.group(group)

	depth := len(ib.entries) - g.nextIdx + len(g.pending)
	last := ""
	if g.nextIdx > 0 {
		last = ib.entries[g.nextIdx-1].id
	}
	return QueueStatus{
		AgentID:         agentID,
		QueueDepth:      depth,
		PendingCount:    len(g.pending),
		LastDeliveredID: last,
	}, nil
}

func (b *MemoryBus) Close() error { return nil }
