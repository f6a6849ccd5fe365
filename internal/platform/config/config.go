package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Server      Server
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Audit       AuditConfig
	Registry    RegistryConfig
	Pipeline    PipelineConfig
	Tolerance   ToleranceConfig
	Prevalidate PrevalidateConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
}

// PostgresConfig holds the relational store connection settings. An empty URL
// means Postgres is not configured and memory stores are used.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the geocode cache connection settings. An empty URL means
// Redis is not configured and geocoding runs uncached.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig holds the audit sink settings. Empty Brokers disables the sink.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// AuditConfig bounds the in-process audit event buffer. A full buffer drops
// events rather than blocking validation.
type AuditConfig struct {
	BufferSize int
}

// RegistryConfig points at the curated registry and boundary data directories.
type RegistryConfig struct {
	RegistryDir string
	BoundaryDir string
}

// PipelineConfig bounds batch execution.
type PipelineConfig struct {
	Parallelism int
}

// ToleranceConfig carries the default tolerance constants. Jurisdiction
// profiles are derived from these per run; historical runs persist the
// profile they used, so changing defaults never rewrites history.
type ToleranceConfig struct {
	OverlapEpsilonM2     float64
	CoastalWaterFraction float64
	CoverageMin          float64
	CoverageMaxInland    float64
	CoverageMaxCoastal   float64
	OutsideRatioMax      float64
}

// PrevalidateConfig carries the centroid-distance thresholds for the cheap
// filters. Below the near threshold a layer continues silently; above the
// far threshold it is rejected; between the two it continues flagged for
// human review.
type PrevalidateConfig struct {
	CentroidNearM float64
	CentroidFarM  float64
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	jwtSigningKey := getEnv("TESSERA_JWT_SIGNING_KEY", "")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:          getEnv("TESSERA_ADDR", ":8080"),
			LogLevel:      getEnv("TESSERA_LOG_LEVEL", "info"),
			JWTSigningKey: jwtSigningKey,
		},
		Postgres: PostgresConfig{
			URL:             getEnv("TESSERA_DATABASE_URL", ""),
			MaxOpenConns:    getInt("TESSERA_DATABASE_MAX_OPEN_CONNS", 16),
			ConnMaxLifetime: getDuration("TESSERA_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getEnv("TESSERA_REDIS_URL", ""),
			PoolSize:     getInt("TESSERA_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("TESSERA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("TESSERA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("TESSERA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("TESSERA_REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     getDuration("TESSERA_GEOCODE_CACHE_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:    splitNonEmpty(getEnv("TESSERA_KAFKA_BROKERS", "")),
			AuditTopic: getEnv("TESSERA_KAFKA_AUDIT_TOPIC", "tessera.audit.events"),
		},
		Audit: AuditConfig{
			BufferSize: getInt("TESSERA_AUDIT_BUFFER_SIZE", 256),
		},
		Registry: RegistryConfig{
			RegistryDir: getEnv("TESSERA_REGISTRY_DIR", "registry"),
			BoundaryDir: getEnv("TESSERA_BOUNDARY_DIR", "boundaries"),
		},
		Pipeline: PipelineConfig{
			Parallelism: getInt("TESSERA_PIPELINE_PARALLELISM", 8),
		},
		Tolerance: ToleranceConfig{
			OverlapEpsilonM2:     getFloat("TESSERA_OVERLAP_EPSILON_M2", 25_000),
			CoastalWaterFraction: getFloat("TESSERA_COASTAL_WATER_FRACTION", 0.10),
			CoverageMin:          getFloat("TESSERA_COVERAGE_MIN", 0.85),
			CoverageMaxInland:    getFloat("TESSERA_COVERAGE_MAX_INLAND", 1.15),
			CoverageMaxCoastal:   getFloat("TESSERA_COVERAGE_MAX_COASTAL", 2.00),
			OutsideRatioMax:      getFloat("TESSERA_OUTSIDE_RATIO_MAX", 0.15),
		},
		Prevalidate: PrevalidateConfig{
			CentroidNearM: getFloat("TESSERA_CENTROID_NEAR_M", 10_000),
			CentroidFarM:  getFloat("TESSERA_CENTROID_FAR_M", 50_000),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
