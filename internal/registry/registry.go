// Package registry holds agent manifests, tracks health, and supports
// lookup by id / capability / tag / status (C3 of the gateway core).
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// Registry is the storage-variant-agnostic contract the pipeline depends
// on. Both the in-memory and durable variants satisfy it identically.
type Registry interface {
	Register(ctx context.Context, manifest fabric.AgentManifest) error
	Deregister(ctx context.Context, agentID string) error
	Get(ctx context.Context, agentID string) (fabric.AgentManifest, error)
	List(ctx context.Context, filter fabric.AgentFilter) ([]fabric.AgentManifest, error)
	FindByCapability(ctx context.Context, capability string) ([]RankedAgent, error)
	UpdateStatus(ctx context.Context, agentID string, status fabric.AgentStatus, lastSeenAt time.Time) error
	Heartbeat(ctx context.Context, agentID string) error
	Close() error
}

// CallLogger is an OPTIONAL capability a Registry variant may satisfy to
// receive a durable audit row per dispatched call. Only SQLiteRegistry
// implements it; the pipeline type-asserts for it so the in-memory variant
// stays audit-free without a dummy no-op implementation.
type CallLogger interface {
	LogCall(ctx context.Context, traceID, targetType, targetID string, request, response []byte, startedAt, completedAt time.Time) error
}

// ManifestSeeder is an OPTIONAL capability a Registry variant may satisfy to
// batch-seed startup manifests in one call. Only MemoryRegistry implements
// it; SQLiteRegistry is seeded via the per-record Register path instead.
type ManifestSeeder interface {
	LoadManifests(manifests []fabric.AgentManifest)
}

// RankedAgent is one candidate returned by FindByCapability, in dispatch
// preference order.
type RankedAgent struct {
	AgentID  string
	Priority int
}

// ErrNotFound is returned when a requested agent does not exist.
type ErrNotFound struct {
	AgentID string
}

func (e *ErrNotFound) Error() string { return "agent not found: " + e.AgentID }

// AsFabricError maps a registry error onto the canonical error vocabulary.
func AsFabricError(err error) *fabric.Error {
	if _, ok := err.(*ErrNotFound); ok {
		return fabric.NewError(fabric.AgentNotFound, err.Error())
	}
	return fabric.NewError(fabric.InternalError, "registry error")
}

// matchFilter reports whether manifest satisfies every non-empty field of filter.
func matchFilter(m fabric.AgentManifest, filter fabric.AgentFilter) bool {
	if filter.Capability != "" {
		if _, ok := m.HasCapability(filter.Capability); !ok {
			return false
		}
	}
	if filter.Tag != "" {
		found := false
		for _, t := range m.Tags {
			if t == filter.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Status != "" && m.Status != filter.Status {
		return false
	}
	return true
}

// sortManifests orders manifests per §4.3: primary by status rank, secondary
// by display name.
func sortManifests(list []fabric.AgentManifest) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := fabric.StatusRank(list[i].Status), fabric.StatusRank(list[j].Status)
		if ri != rj {
			return ri < rj
		}
		return list[i].DisplayName < list[j].DisplayName
	})
}
