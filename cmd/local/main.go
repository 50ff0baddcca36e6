// fabric-local — the stdio JSON front for co-located callers (CLIs,
// subprocess-managed agents) that don't need HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fabricgw/gateway/internal/adapter"
	"github.com/fabricgw/gateway/internal/authn"
	"github.com/fabricgw/gateway/internal/bus"
	"github.com/fabricgw/gateway/internal/config"
	"github.com/fabricgw/gateway/internal/pipeline"
	"github.com/fabricgw/gateway/internal/registry"
	"github.com/fabricgw/gateway/internal/telemetry"
	"github.com/fabricgw/gateway/internal/toolhost"
	"github.com/fabricgw/gateway/internal/toolhost/builtin"
	"github.com/fabricgw/gateway/internal/transport/localfront"
	"github.com/fabricgw/gateway/pkg/manifest"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.Version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	reg, err := buildRegistry(cfg.Registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build registry")
	}
	defer reg.Close()

	manifests, err := manifest.LoadDir(cfg.ManifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load manifests")
	}
	if seeder, ok := reg.(registry.ManifestSeeder); ok {
		seeder.LoadManifests(manifests)
	} else {
		for _, m := range manifests {
			if err := reg.Register(ctx, m); err != nil {
				log.Error().Err(err).Str("agent_id", m.AgentID).Msg("failed to seed manifest")
			}
		}
	}

	factory := adapter.NewFactory(http.DefaultClient)
	prober := adapter.NewRegistryProber(reg, factory)
	monitor := registry.NewHealthMonitor(reg, prober, registry.ProbeConfig{
		Interval:        cfg.Health.Interval,
		StalenessWindow: cfg.Health.StalenessWindow,
		CronExpr:        cfg.Health.CronExpr,
	}, log.Logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	tools := toolhost.NewHost()
	builtin.RegisterAll(tools, cfg.FileToolRoot)

	msgBus, err := buildBus(cfg.Bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build message bus")
	}
	defer msgBus.Close()

	// The local front is trusted-caller-only; every request authenticates
	// through NoneProvider regardless of FABRIC_PSK_SECRET.
	authChain := authn.NewChain(authn.NoneProvider{})

	p := pipeline.New(reg, factory, tools, msgBus, authChain, pipeline.Config{
		FallbackEnabled: cfg.Pipeline.FallbackEnabled,
		RateLimit:       cfg.Pipeline.RateLimitRPS,
		RateBurst:       cfg.Pipeline.RateBurst,
		Version:         cfg.Version,
	}, log.Logger)

	front := localfront.New(p, log.Logger)
	log.Info().Msg("fabric local front reading stdin")
	if err := front.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("local front failed")
	}
}

func buildRegistry(cfg config.RegistryConfig) (registry.Registry, error) {
	switch cfg.Backend {
	case "sqlite":
		return registry.NewSQLiteRegistry(cfg.SQLitePath)
	default:
		return registry.NewMemoryRegistry(cfg.SnapshotPath), nil
	}
}

func buildBus(cfg config.BusConfig) (bus.Bus, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return bus.NewRedisBus(client, bus.WithVisibilityHorizon(cfg.VisibilityHorizon)), nil
	default:
		return bus.NewMemoryBus(), nil
	}
}
