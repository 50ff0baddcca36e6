package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

type fakeProber struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (f *fakeProber) ProbeHealth(ctx context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[agentID] {
		return assert.AnError
	}
	return nil
}

func (f *fakeProber) setFail(agentID string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]bool)
	}
	f.fail[agentID] = fail
}

func TestSweepDemotesAfterConsecutiveFailures(t *testing.T) {
	reg := NewMemoryRegistry("")
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, fabric.AgentManifest{
		AgentID: "agent-a", DisplayName: "A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://x"},
		Status:      fabric.StatusOnline, LastSeenAt: time.Now(),
	}))

	prober := &fakeProber{}
	prober.setFail("agent-a", true)
	h := NewHealthMonitor(reg, prober, ProbeConfig{}, zerolog.Nop())

	h.sweep(ctx)
	m, err := reg.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, fabric.StatusOnline, m.Status)

	h.sweep(ctx)
	m, err = reg.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, fabric.StatusDegraded, m.Status)
}

func TestSweepPromotesOnSuccess(t *testing.T) {
	reg := NewMemoryRegistry("")
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, fabric.AgentManifest{
		AgentID: "agent-a", DisplayName: "A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://x"},
		Status:      fabric.StatusDegraded, LastSeenAt: time.Now(),
	}))

	prober := &fakeProber{}
	h := NewHealthMonitor(reg, prober, ProbeConfig{}, zerolog.Nop())
	h.sweep(ctx)

	m, err := reg.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, fabric.StatusOnline, m.Status)
}

func TestSweepDemotesStaleAgentStraightToOfflineWithoutBumpingLastSeen(t *testing.T) {
	reg := NewMemoryRegistry("")
	ctx := context.Background()
	staleSince := time.Now().Add(-time.Hour)
	require.NoError(t, reg.Register(ctx, fabric.AgentManifest{
		AgentID: "agent-a", DisplayName: "A",
		RuntimeKind: fabric.RuntimeNative,
		Endpoint:    fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://x"},
		Status:      fabric.StatusOnline, LastSeenAt: staleSince,
	}))

	prober := &fakeProber{}
	h := NewHealthMonitor(reg, prober, ProbeConfig{StalenessWindow: time.Minute}, zerolog.Nop())
	h.sweep(ctx)

	m, err := reg.Get(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, fabric.StatusOffline, m.Status)
	assert.True(t, m.LastSeenAt.Equal(staleSince), "staleness demotion must not advance last_seen_at")
}

func TestInvalidCronFallsBackToFixedInterval(t *testing.T) {
	reg := NewMemoryRegistry("")
	prober := &fakeProber{}
	h := NewHealthMonitor(reg, prober, ProbeConfig{Interval: 10 * time.Millisecond, CronExpr: "not-a-cron"}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	h.Start(ctx)
	<-ctx.Done()
	// No assertion beyond: Start must not panic or deadlock on a malformed
	// cron expression, falling back to the fixed-interval loop.
}
