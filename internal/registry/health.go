package registry

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/fabricgw/gateway/pkg/fabric"
)

// Prober calls an agent's adapter health probe. Implemented by the adapter
// layer; kept as a narrow interface here to avoid an import cycle between
// registry and adapter.
type Prober interface {
	ProbeHealth(ctx context.Context, agentID string) error
}

// ProbeConfig tunes the background health-probe loop (§4.3 defaults). If
// CronExpr is set, the probe cadence follows that cron expression instead
// of the fixed Interval, letting operators probe more/less often at
// particular times of day without redeploying.
type ProbeConfig struct {
	Interval        time.Duration // default 30s
	StalenessWindow time.Duration // default 60s
	CronExpr        string        // optional, e.g. "*/30 * * * * *"
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 60 * time.Second
	}
	return c
}

// HealthMonitor runs the registry's background health-probe loop: iterating
// online and degraded agents at a fixed cadence, demoting/promoting per
// consecutive success/failure counts, and demoting stale agents.
type HealthMonitor struct {
	reg      Registry
	prober   Prober
	cfg      ProbeConfig
	logger   zerolog.Logger
	stopCh   chan struct{}
	failures map[string]int
}

// NewHealthMonitor builds a monitor bound to reg and prober.
func NewHealthMonitor(reg Registry, prober Prober, cfg ProbeConfig, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		reg:      reg,
		prober:   prober,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		stopCh:   make(chan struct{}),
		failures: make(map[string]int),
	}
}

// Start runs the probe loop until ctx is canceled or Stop is called.
func (h *HealthMonitor) Start(ctx context.Context) {
	if h.cfg.CronExpr != "" {
		go h.runCron(ctx)
		return
	}
	go func() {
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.sweep(ctx)
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// runCron sweeps on the cadence described by cfg.CronExpr, falling back to
// the fixed interval loop if the expression fails to parse.
func (h *HealthMonitor) runCron(ctx context.Context) {
	for {
		next, err := gronx.NextTick(h.cfg.CronExpr, false)
		if err != nil {
			h.logger.Warn().Err(err).Str("cron", h.cfg.CronExpr).Msg("health monitor: invalid cron expression, falling back to fixed interval")
			h.cfg.CronExpr = ""
			h.Start(ctx)
			return
		}
		select {
		case <-time.After(time.Until(next)):
			h.sweep(ctx)
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the probe loop.
func (h *HealthMonitor) Stop() {
	close(h.stopCh)
}

func (h *HealthMonitor) sweep(ctx context.Context) {
	agents, err := h.reg.List(ctx, fabric.AgentFilter{})
	if err != nil {
		h.logger.Warn().Err(err).Msg("health monitor: list failed")
		return
	}
	now := time.Now()
	for _, a := range agents {
		if a.Status != fabric.StatusOnline && a.Status != fabric.StatusDegraded {
			continue
		}
		if now.Sub(a.LastSeenAt) > h.cfg.StalenessWindow {
			// §4.3: staleness demotes straight to offline, independent of the
			// probe-failure counter, and must not advance LastSeenAt — the
			// agent is stale precisely because nothing has refreshed it.
			_ = h.reg.UpdateStatus(ctx, a.AgentID, fabric.StatusOffline, a.LastSeenAt)
			h.failures[a.AgentID] = 0
			continue
		}
		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
		err := backoff.Retry(func() error { return h.prober.ProbeHealth(ctx, a.AgentID) }, bo)
		h.applyTransition(ctx, a.AgentID, a.Status, err == nil, now)
	}
}

// applyTransition implements the state machine from §4.3: two consecutive
// failures demote online→degraded, three demote degraded→offline, one
// success promotes to online.
func (h *HealthMonitor) applyTransition(ctx context.Context, agentID string, current fabric.AgentStatus, ok bool, at time.Time) {
	if ok {
		h.failures[agentID] = 0
		if current != fabric.StatusOnline {
			_ = h.reg.UpdateStatus(ctx, agentID, fabric.StatusOnline, at)
		} else {
			_ = h.reg.UpdateStatus(ctx, agentID, fabric.StatusOnline, at)
		}
		return
	}
	h.failures[agentID]++
	switch {
	case current == fabric.StatusOnline && h.failures[agentID] >= 2:
		_ = h.reg.UpdateStatus(ctx, agentID, fabric.StatusDegraded, at)
	case current == fabric.StatusDegraded && h.failures[agentID] >= 3:
		_ = h.reg.UpdateStatus(ctx, agentID, fabric.StatusOffline, at)
	}
}
