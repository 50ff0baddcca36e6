package adapter

import (
	"context"

	"github.com/fabricgw/gateway/internal/registry"
)

// RegistryProber satisfies registry.Prober by looking a manifest up and
// building the matching adapter variant to run its health probe. It exists
// to avoid an import cycle: registry cannot depend on adapter directly, so
// the gateway wires this shim in instead at startup.
type RegistryProber struct {
	registry registry.Registry
	factory  *Factory
}

// NewRegistryProber binds a prober to reg and factory.
func NewRegistryProber(reg registry.Registry, factory *Factory) *RegistryProber {
	return &RegistryProber{registry: reg, factory: factory}
}

// ProbeHealth looks up agentID's manifest and runs its adapter's probe.
func (p *RegistryProber) ProbeHealth(ctx context.Context, agentID string) error {
	manifest, err := p.registry.Get(ctx, agentID)
	if err != nil {
		return err
	}
	ad, err := p.factory.Build(manifest)
	if err != nil {
		return err
	}
	return ad.ProbeHealth(ctx)
}
