package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the Waibon relay gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	LLM       LLMConfig       `json:"llm"`
	Line      LineConfig      `json:"line"`
	Tenant    TenantConfig    `json:"tenant"`
	Memory    MemoryConfig    `json:"memory,omitempty"`
	Hive      HiveConfig      `json:"hive,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Log       LogConfig       `json:"log,omitempty"`
}

// GatewayConfig controls the HTTP listener and the background workers.
// Token guards the admin endpoints; it is read from env only.
type GatewayConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Token           string   `json:"-" envconfig:"WAIBON_GATEWAY_TOKEN"`
	MaxBodyBytes    int64    `json:"max_body_bytes,omitempty"`
	RateLimitRPM    int      `json:"rate_limit_rpm,omitempty"` // per LINE user, 0 = disabled
	RateLimitBurst  int      `json:"rate_limit_burst,omitempty"`
	Workers         int      `json:"workers,omitempty"`
	QueueSize       int      `json:"queue_size,omitempty"`
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty"`
}

// DatabaseConfig selects the relational store.
// PostgresDSN is NEVER read from config.json (secret), only from env DATABASE_URL.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "sqlite" (default) or "postgres"
	PostgresDSN string `json:"-" envconfig:"DATABASE_URL"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	AutoMigrate bool   `json:"auto_migrate,omitempty"`
}

// IsPostgres reports whether the gateway runs against Postgres.
func (d DatabaseConfig) IsPostgres() bool {
	return d.Mode == "postgres" && d.PostgresDSN != ""
}

// LLMConfig configures the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	APIBase         string   `json:"api_base,omitempty" envconfig:"OPENAI_API_BASE"`
	APIKey          string   `json:"-" envconfig:"OPENAI_API_KEY"`
	Model           string   `json:"model,omitempty" envconfig:"OPENAI_MODEL"`
	FallbackModel   string   `json:"fallback_model,omitempty"`
	Temperature     float64  `json:"temperature,omitempty"`
	HiveTemperature float64  `json:"hive_temperature,omitempty"`
	Timeout         Duration `json:"timeout,omitempty"`
}

// LineConfig configures the LINE Messaging API transport.
// ChannelSecret/ChannelAccessToken describe the optional env-only channel used
// when a destination has no row in line_channels.
type LineConfig struct {
	APIBase            string   `json:"api_base,omitempty"`
	ChannelSecret      string   `json:"-" envconfig:"LINE_CHANNEL_SECRET"`
	ChannelAccessToken string   `json:"-" envconfig:"LINE_CHANNEL_ACCESS_TOKEN"`
	DefaultPersona     string   `json:"default_persona,omitempty"`
	ChunkSize          int      `json:"chunk_size,omitempty"`
	PushDelay          Duration `json:"push_delay,omitempty"`
	FastAck            Duration `json:"fast_ack,omitempty"` // 0 = always wait for the answer
	AckText            string   `json:"ack_text,omitempty"`
	AnnounceUserID     bool     `json:"announce_user_id,omitempty"`
}

// HasEnvChannel reports whether a single-tenant channel is configured via env.
func (l LineConfig) HasEnvChannel() bool {
	return l.ChannelSecret != "" && l.ChannelAccessToken != ""
}

// TenantConfig identifies the default tenant and its privileged LINE user.
type TenantConfig struct {
	OwnerID      string `json:"owner_id,omitempty" envconfig:"WAIBON_OWNER_ID"`
	FatherUserID string `json:"father_user_id,omitempty" envconfig:"FATHER_LINE_USER_ID"`
}

// MemoryConfig bounds short-term conversation memory.
type MemoryConfig struct {
	Window int `json:"window,omitempty"`
}

// HiveConfig bounds the three-persona round-robin.
type HiveConfig struct {
	MaxTurns      int    `json:"max_turns,omitempty"` // hard cap, never above MaxHiveTurns
	DefaultRounds int    `json:"default_rounds,omitempty"`
	ContextLines  int    `json:"context_lines,omitempty"`
	Topic         string `json:"topic,omitempty"`
}

// MaxHiveTurns is the absolute upper bound for a single hive run.
const MaxHiveTurns = 10

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `json:"level,omitempty"` // debug, info, warn, error
	File  string `json:"file,omitempty"`  // optional JSON log file
}

// Duration is a time.Duration that decodes from "1.2s" style strings in JSON5
// and env, or from a bare number of milliseconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"'`)
	return d.Decode(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseFloat(value, 64); err == nil {
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}
