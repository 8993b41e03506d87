// Package config loads process settings from ECOWATCH_* environment
// variables, reading a local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the ecowatch binaries.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	PGDSN           string
	LogLevel        string
	OTelEndpoint    string
	ShutdownTimeout time.Duration

	CORSOrigins  []string
	RateLimitRPS float64
	RateBurst    int
	MaxBodyBytes int64
	// TokenExchange enables POST /v1/auth/token for trusted identity
	// gateways and local development.
	TokenExchange bool

	Influx InfluxConfig
	S3     S3Config
}

// InfluxConfig addresses the reading history archive.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether enough settings are present to connect.
func (c InfluxConfig) Enabled() bool { return c.URL != "" && c.Org != "" && c.Bucket != "" }

// S3Config addresses image payload storage.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Load reads .env files (missing files are ignored) and the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	cfg := Config{
		HTTPAddr:        p.str("ECOWATCH_HTTP_ADDR", ":8080"),
		GRPCAddr:        p.str("ECOWATCH_GRPC_ADDR", ":9090"),
		PGDSN:           p.str("ECOWATCH_PG_DSN", ""),
		LogLevel:        p.str("ECOWATCH_LOG_LEVEL", "info"),
		OTelEndpoint:    p.str("ECOWATCH_OTEL_ENDPOINT", ""),
		ShutdownTimeout: p.duration("ECOWATCH_SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:     p.list("ECOWATCH_CORS_ORIGINS"),
		RateLimitRPS:    p.float("ECOWATCH_RATE_LIMIT_RPS", 20),
		RateBurst:       p.int("ECOWATCH_RATE_LIMIT_BURST", 40),
		MaxBodyBytes:    int64(p.int("ECOWATCH_MAX_BODY_BYTES", 1<<20)),
		TokenExchange:   p.bool("ECOWATCH_TOKEN_EXCHANGE", false),
		Influx: InfluxConfig{
			URL:    p.str("ECOWATCH_INFLUX_URL", ""),
			Token:  p.str("ECOWATCH_INFLUX_TOKEN", ""),
			Org:    p.str("ECOWATCH_INFLUX_ORG", ""),
			Bucket: p.str("ECOWATCH_INFLUX_BUCKET", "readings"),
		},
		S3: S3Config{
			Bucket:   p.str("ECOWATCH_S3_BUCKET", ""),
			Region:   p.str("ECOWATCH_S3_REGION", "us-east-1"),
			Endpoint: p.str("ECOWATCH_S3_ENDPOINT", ""),
		},
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	if cfg.RateBurst < 1 {
		return Config{}, fmt.Errorf("ECOWATCH_RATE_LIMIT_BURST must be positive")
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) list(key string) []string {
	var out []string
	for _, part := range strings.Split(p.getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) int(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
