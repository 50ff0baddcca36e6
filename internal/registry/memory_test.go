package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricgw/gateway/pkg/fabric"
)

func testManifest(id string, caps ...string) fabric.AgentManifest {
	var cds []fabric.CapabilityDescriptor
	for _, c := range caps {
		cds = append(cds, fabric.CapabilityDescriptor{Name: c})
	}
	return fabric.AgentManifest{
		AgentID:      id,
		DisplayName:  id,
		Version:      "1.0.0",
		RuntimeKind:  fabric.RuntimeNative,
		Endpoint:     fabric.Endpoint{Transport: fabric.TransportHTTP, URI: "http://localhost/" + id},
		Capabilities: cds,
		TrustTier:    fabric.TrustLocal,
	}
}

func TestMemoryRegistryRegisterGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry("")
	require.NoError(t, r.Register(ctx, testManifest("a1", "reason")))

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AgentID)
	_, ok := got.HasCapability("reason")
	assert.True(t, ok)
}

func TestMemoryRegistryGetNotFound(t *testing.T) {
	r := NewMemoryRegistry("")
	_, err := r.Get(context.Background(), "nobody")
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestMemoryRegistryListOrdering(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry("")
	off := testManifest("z", "x")
	off.Status = fabric.StatusOffline
	on := testManifest("a", "x")
	on.Status = fabric.StatusOnline
	require.NoError(t, r.Register(ctx, off))
	require.NoError(t, r.Register(ctx, on))

	list, err := r.List(ctx, fabric.AgentFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].AgentID)
	assert.Equal(t, "z", list[1].AgentID)
}

func TestMemoryRegistryStatusMonotonicity(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry("")
	require.NoError(t, r.Register(ctx, testManifest("a1")))

	newer := time.Now()
	older := newer.Add(-time.Minute)

	require.NoError(t, r.UpdateStatus(ctx, "a1", fabric.StatusOnline, newer))
	require.NoError(t, r.UpdateStatus(ctx, "a1", fabric.StatusOffline, older))

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, fabric.StatusOnline, got.Status, "an older probe must not override newer state")
}

func TestMemoryRegistryFindByCapability(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry("")
	require.NoError(t, r.Register(ctx, testManifest("a1", "reason")))
	require.NoError(t, r.Register(ctx, testManifest("a2", "reason")))

	ranked, err := r.FindByCapability(ctx, "reason")
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}
