package registry

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// snapshot is the JSON-serializable shape written to disk, mirroring the
// teacher's file-based persistence for its in-memory store.
type snapshot struct {
	Agents map[string]fabric.AgentManifest `json:"agents"`
}

// MemoryRegistry implements Registry over an in-memory map, optionally
// initialized from a declarative manifest document and optionally persisted
// to a JSON snapshot file between restarts.
type MemoryRegistry struct {
	mu           sync.RWMutex
	agents       map[string]fabric.AgentManifest
	snapshotPath string
	saveMu       sync.Mutex
}

// NewMemoryRegistry builds an empty in-memory registry. If snapshotPath is
// non-empty, Register/Deregister/UpdateStatus persist to it.
func NewMemoryRegistry(snapshotPath string) *MemoryRegistry {
	r := &MemoryRegistry{
		agents:       make(map[string]fabric.AgentManifest),
		snapshotPath: snapshotPath,
	}
	r.loadSnapshot()
	return r
}

// LoadManifests seeds the registry from a declarative manifest document
// (see pkg/manifest), as happens at startup per §3 Lifecycle.
func (r *MemoryRegistry) LoadManifests(manifests []fabric.AgentManifest) {
	r.mu.Lock()
	now := time.Now()
	for _, m := range manifests {
		if m.Status == "" {
			m.Status = fabric.StatusUnknown
		}
		if m.LastSeenAt.IsZero() {
			m.LastSeenAt = now
		}
		r.agents[m.AgentID] = m
	}
	r.mu.Unlock()
	r.persist()
}

func (r *MemoryRegistry) Register(ctx context.Context, manifest fabric.AgentManifest) error {
	r.mu.Lock()
	if manifest.Status == "" {
		manifest.Status = fabric.StatusUnknown
	}
	if manifest.LastSeenAt.IsZero() {
		manifest.LastSeenAt = time.Now()
	}
	r.agents[manifest.AgentID] = manifest
	r.mu.Unlock()
	r.persist()
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	if _, ok := r.agents[agentID]; !ok {
		r.mu.Unlock()
		return &ErrNotFound{AgentID: agentID}
	}
	delete(r.agents, agentID)
	r.mu.Unlock()
	r.persist()
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, agentID string) (fabric.AgentManifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.agents[agentID]
	if !ok {
		return fabric.AgentManifest{}, &ErrNotFound{AgentID: agentID}
	}
	return m, nil
}

func (r *MemoryRegistry) List(ctx context.Context, filter fabric.AgentFilter) ([]fabric.AgentManifest, error) {
	r.mu.RLock()
	out := make([]fabric.AgentManifest, 0, len(r.agents))
	for _, m := range r.agents {
		if matchFilter(m, filter) {
			out = append(out, m)
		}
	}
	r.mu.RUnlock()
	sortManifests(out)
	return out, nil
}

func (r *MemoryRegistry) FindByCapability(ctx context.Context, capability string) ([]RankedAgent, error) {
	manifests, err := r.List(ctx, fabric.AgentFilter{Capability: capability})
	if err != nil {
		return nil, err
	}
	out := make([]RankedAgent, 0, len(manifests))
	for i, m := range manifests {
		out = append(out, RankedAgent{AgentID: m.AgentID, Priority: i})
	}
	return out, nil
}

func (r *MemoryRegistry) UpdateStatus(ctx context.Context, agentID string, status fabric.AgentStatus, lastSeenAt time.Time) error {
	r.mu.Lock()
	m, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return &ErrNotFound{AgentID: agentID}
	}
	// Monotone with respect to last_seen_at per invariant 6: a newer probe
	// supersedes older state, an older one (e.g. a race on delayed retry) is
	// dropped silently.
	if lastSeenAt.Before(m.LastSeenAt) {
		r.mu.Unlock()
		return nil
	}
	m.Status = status
	m.LastSeenAt = lastSeenAt
	r.agents[agentID] = m
	r.mu.Unlock()
	r.persist()
	return nil
}

func (r *MemoryRegistry) Heartbeat(ctx context.Context, agentID string) error {
	return r.UpdateStatus(ctx, agentID, fabric.StatusOnline, time.Now())
}

func (r *MemoryRegistry) Close() error { return nil }

func (r *MemoryRegistry) loadSnapshot() {
	if r.snapshotPath == "" {
		return
	}
	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap.Agents != nil {
		r.agents = snap.Agents
	}
}

func (r *MemoryRegistry) persist() {
	if r.snapshotPath == "" {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	r.mu.RLock()
	snap := snapshot{Agents: make(map[string]fabric.AgentManifest, len(r.agents))}
	for k, v := range r.agents {
		snap.Agents[k] = v
	}
	r.mu.RUnlock()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(r.snapshotPath, data, 0o644)
}
