// Package config reads the gateway's runtime configuration from the
// environment, mirroring the teacher's envStr/envInt/envBool loader shape.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the gateway.
type Config struct {
	Port           int
	Version        string
	ManifestPath   string
	FileToolRoot   string
	Registry       RegistryConfig
	Bus            BusConfig
	Health         HealthConfig
	Auth           AuthConfig
	Pipeline       PipelineConfig
	Telemetry      TelemetryConfig
	CORSOrigins    []string
}

// RegistryConfig selects and configures the agent registry backend.
type RegistryConfig struct {
	// Backend is "memory" or "sqlite".
	Backend      string
	SnapshotPath string
	SQLitePath   string
}

// BusConfig selects and configures the message bus backend.
type BusConfig struct {
	// Backend is "memory" or "redis".
	Backend           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	VisibilityHorizon time.Duration
}

// HealthConfig tunes the background health-probe loop.
type HealthConfig struct {
	Interval        time.Duration
	StalenessWindow time.Duration
	CronExpr        string
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// AuthConfig configures the credential verifier chain.
type AuthConfig struct {
	PSKSecret        string
	PassportEnabled  bool
}

// PipelineConfig tunes the request pipeline's dispatch policy.
type PipelineConfig struct {
	FallbackEnabled bool
	RateLimitRPS    float64
	RateBurst       int
}

// Load reads configuration from environment variables with sensible
// defaults for local/dev use.
func Load() *Config {
	return &Config{
		Port:         envInt("FABRIC_PORT", 8080),
		Version:      envStr("FABRIC_VERSION", "0.1.0"),
		ManifestPath: envStr("FABRIC_MANIFEST_PATH", ""),
		FileToolRoot: envStr("FABRIC_FILE_TOOL_ROOT", "./data"),
		Registry: RegistryConfig{
			Backend:      envStr("FABRIC_REGISTRY_BACKEND", "memory"),
			SnapshotPath: envStr("FABRIC_REGISTRY_SNAPSHOT_PATH", ""),
			SQLitePath:   envStr("FABRIC_REGISTRY_SQLITE_PATH", "fabric-registry.db"),
		},
		Bus: BusConfig{
			Backend:           envStr("FABRIC_BUS_BACKEND", "memory"),
			RedisAddr:         envStr("FABRIC_REDIS_ADDR", "localhost:6379"),
			RedisPassword:     envStr("FABRIC_REDIS_PASSWORD", ""),
			RedisDB:           envInt("FABRIC_REDIS_DB", 0),
			VisibilityHorizon: envDuration("FABRIC_BUS_VISIBILITY_HORIZON", 30*time.Second),
		},
		Health: HealthConfig{
			Interval:        envDuration("FABRIC_HEALTH_INTERVAL", 30*time.Second),
			StalenessWindow: envDuration("FABRIC_HEALTH_STALENESS_WINDOW", 60*time.Second),
			CronExpr:        envStr("FABRIC_HEALTH_CRON", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "fabric-gateway"),
		},
		Auth: AuthConfig{
			PSKSecret:       envStr("FABRIC_PSK_SECRET", "dev-secret"),
			PassportEnabled: envBool("FABRIC_PASSPORT_ENABLED", false),
		},
		Pipeline: PipelineConfig{
			FallbackEnabled: envBool("FABRIC_FALLBACK_ENABLED", true),
			RateLimitRPS:    envFloat("FABRIC_RATE_LIMIT_RPS", 0),
			RateBurst:       envInt("FABRIC_RATE_BURST", 20),
		},
		CORSOrigins: envStrList("FABRIC_CORS_ORIGINS", []string{"*"}),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envStrList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
