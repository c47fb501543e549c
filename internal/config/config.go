package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/flowscope/internal/observability"
	"github.com/efebarandurmaz/flowscope/internal/scoring"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
	"github.com/efebarandurmaz/flowscope/internal/validation"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "configs/flowscope.yaml"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        LogConfig         `mapstructure:"log"`
	Analysis   AnalysisConfig    `mapstructure:"analysis"`
	Scoring    scoring.Policy    `mapstructure:"scoring"`
	Validation validation.Config `mapstructure:"validation"`
	Events     EventsConfig      `mapstructure:"events"`
	Tracing    TracingConfig     `mapstructure:"tracing"`
	Graph      GraphConfig       `mapstructure:"graph"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalysisConfig bounds path enumeration and sizes the report cache.
type AnalysisConfig struct {
	MaxPaths  int `mapstructure:"max_paths"`
	MaxSteps  int `mapstructure:"max_steps"`
	CacheSize int `mapstructure:"cache_size"`
}

type EventsConfig struct {
	NATSURL      string        `mapstructure:"nats_url"`
	AuditPath    string        `mapstructure:"audit_path"`
	SSE          bool          `mapstructure:"sse"`
	SSEKeepAlive time.Duration `mapstructure:"sse_keepalive"`
	HistorySize  int           `mapstructure:"history_size"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	lim := traversal.DefaultLimits()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigin:      "*",
		},
		Log:        LogConfig{Level: "info", Format: "text"},
		Analysis:   AnalysisConfig{MaxPaths: lim.MaxPaths, MaxSteps: lim.MaxSteps},
		Scoring:    *scoring.DefaultPolicy(),
		Validation: *validation.DefaultConfig(),
		Events: EventsConfig{
			SSE:          true,
			SSEKeepAlive: 15 * time.Second,
			HistorySize:  200,
		},
		Tracing: TracingConfig{SampleRate: 1.0, Environment: "development"},
		Graph:   GraphConfig{URI: "bolt://localhost:7687", Username: "neo4j", Database: "neo4j"},
	}
}

// Limits returns the traversal caps.
func (c *Config) Limits() traversal.Limits {
	return traversal.Limits{MaxPaths: c.Analysis.MaxPaths, MaxSteps: c.Analysis.MaxSteps}
}

// Policy returns a validated copy of the scoring policy.
func (c *Config) Policy() (*scoring.Policy, error) {
	p := c.Scoring.Clone()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("scoring policy: %w", err)
	}
	return p, nil
}

// LogOptions converts the log section for observability.NewLogger.
func (c *Config) LogOptions() observability.LogConfig {
	return observability.LogConfig{Level: c.Log.Level, Format: c.Log.Format}
}

// TracingOptions converts the tracing section for observability.InitTracing.
func (c *Config) TracingOptions(version string) *observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.ServiceVersion = version
	tc.OTLPEndpoint = c.Tracing.OTLPEndpoint
	tc.SampleRate = c.Tracing.SampleRate
	if c.Tracing.Environment != "" {
		tc.Environment = c.Tracing.Environment
	}
	return tc
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Server.Addr == "" {
		warnings = append(warnings, "server addr is empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		warnings = append(warnings, fmt.Sprintf("server max_body_bytes %d is not positive", c.Server.MaxBodyBytes))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("log format '%s' is unknown, using text", c.Log.Format))
	}

	if c.Analysis.MaxPaths <= 0 || c.Analysis.MaxSteps <= 0 {
		warnings = append(warnings, "analysis max_paths and max_steps must be positive, defaults apply")
	}
	if c.Analysis.CacheSize < 0 {
		warnings = append(warnings, fmt.Sprintf("analysis cache_size %d is negative, cache disabled", c.Analysis.CacheSize))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	if c.Events.NATSURL != "" && !strings.HasPrefix(c.Events.NATSURL, "nats://") && !strings.HasPrefix(c.Events.NATSURL, "tls://") {
		warnings = append(warnings, fmt.Sprintf("events nats_url '%s' has no nats:// or tls:// scheme", c.Events.NATSURL))
	}

	if err := c.Scoring.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			warnings = append(warnings, "scoring: "+line)
		}
	}

	return warnings
}

// Load reads configuration from file and environment. A missing file is not
// an error: defaults and FLOWSCOPE_* variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOWSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Slices decode over the defaults element by element, so replace the
	// level table wholesale when the file provides one.
	if v.IsSet("scoring.levels") {
		var levels []scoring.LevelThreshold
		if err := v.UnmarshalKey("scoring.levels", &levels); err != nil {
			return nil, fmt.Errorf("unmarshalling scoring.levels: %w", err)
		}
		cfg.Scoring.Levels = levels
	}

	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.cors_origin", d.Server.CORSOrigin)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("analysis.max_paths", d.Analysis.MaxPaths)
	v.SetDefault("analysis.max_steps", d.Analysis.MaxSteps)
	v.SetDefault("analysis.cache_size", d.Analysis.CacheSize)

	v.SetDefault("events.nats_url", d.Events.NATSURL)
	v.SetDefault("events.audit_path", d.Events.AuditPath)
	v.SetDefault("events.sse", d.Events.SSE)
	v.SetDefault("events.sse_keepalive", d.Events.SSEKeepAlive)
	v.SetDefault("events.history_size", d.Events.HistorySize)

	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.environment", d.Tracing.Environment)

	v.SetDefault("graph.uri", d.Graph.URI)
	v.SetDefault("graph.username", d.Graph.Username)
	v.SetDefault("graph.password", d.Graph.Password)
	v.SetDefault("graph.database", d.Graph.Database)
}
