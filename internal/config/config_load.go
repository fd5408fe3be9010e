package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodyBytes:    1 << 20,
			RateLimitRPM:    20,
			RateLimitBurst:  5,
			Workers:         4,
			QueueSize:       256,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Mode:        "sqlite",
			SQLitePath:  "waibon.db",
			AutoMigrate: true,
		},
		LLM: LLMConfig{
			APIBase:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			FallbackModel:   "gpt-4o-mini",
			Temperature:     0.45,
			HiveTemperature: 0.3,
			Timeout:         Duration(60 * time.Second),
		},
		Line: LineConfig{
			APIBase:        "https://api.line.me",
			DefaultPersona: "Waibon",
			ChunkSize:      900,
			PushDelay:      Duration(900 * time.Millisecond),
			FastAck:        Duration(1200 * time.Millisecond),
			AckText:        "รับทราบครับ กำลังคิดอยู่ เดี๋ยวส่งตามไปนะครับ",
		},
		Memory: MemoryConfig{
			Window: 12,
		},
		Hive: HiveConfig{
			MaxTurns:      MaxHiveTurns,
			DefaultRounds: 3,
			ContextLines:  8,
			Topic:         "hive.chat",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "waibon-gateway",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config, one section at a time.
// Keys are WAIBON_<SECTION>_<FIELD>; fields tagged `envconfig` also accept the
// bare tag name (OPENAI_API_KEY, DATABASE_URL, ...).
func (c *Config) applyEnvOverrides() error {
	sections := []struct {
		prefix string
		target interface{}
	}{
		{"WAIBON_GATEWAY", &c.Gateway},
		{"WAIBON_DATABASE", &c.Database},
		{"WAIBON_LLM", &c.LLM},
		{"WAIBON_LINE", &c.Line},
		{"WAIBON_TENANT", &c.Tenant},
		{"WAIBON_MEMORY", &c.Memory},
		{"WAIBON_HIVE", &c.Hive},
		{"WAIBON_TELEMETRY", &c.Telemetry},
		{"WAIBON_LOG", &c.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return fmt.Errorf("env %s: %w", s.prefix, err)
		}
	}

	// A bare DATABASE_URL implies postgres unless the mode was set explicitly.
	if c.Database.PostgresDSN != "" && os.Getenv("WAIBON_DATABASE_MODE") == "" && c.Database.Mode == "sqlite" {
		c.Database.Mode = "postgres"
	}
	return nil
}

func (c *Config) normalize() {
	if c.Hive.MaxTurns <= 0 || c.Hive.MaxTurns > MaxHiveTurns {
		c.Hive.MaxTurns = MaxHiveTurns
	}
	if c.Hive.DefaultRounds <= 0 {
		c.Hive.DefaultRounds = 3
	}
	if c.Hive.ContextLines <= 0 || c.Hive.ContextLines > 8 {
		c.Hive.ContextLines = 8
	}
	if c.Line.ChunkSize <= 0 {
		c.Line.ChunkSize = 900
	}
	if c.Memory.Window <= 0 {
		c.Memory.Window = 12
	}
	if c.Gateway.Workers <= 0 {
		c.Gateway.Workers = 1
	}
	if c.Gateway.QueueSize <= 0 {
		c.Gateway.QueueSize = 64
	}
	c.LLM.APIBase = strings.TrimRight(c.LLM.APIBase, "/")
	c.Line.APIBase = strings.TrimRight(c.Line.APIBase, "/")
	c.Database.SQLitePath = ExpandHome(c.Database.SQLitePath)
	c.Log.File = ExpandHome(c.Log.File)
}

// SecretPresence reports which required secrets are set, never their values.
func (c *Config) SecretPresence() map[string]bool {
	return map[string]bool{
		"OPENAI_API_KEY":            c.LLM.APIKey != "",
		"DATABASE_URL":              c.Database.PostgresDSN != "",
		"LINE_CHANNEL_SECRET":       c.Line.ChannelSecret != "",
		"LINE_CHANNEL_ACCESS_TOKEN": c.Line.ChannelAccessToken != "",
		"WAIBON_OWNER_ID":           c.Tenant.OwnerID != "",
		"FATHER_LINE_USER_ID":       c.Tenant.FatherUserID != "",
		"WAIBON_GATEWAY_TOKEN":      c.Gateway.Token != "",
	}
}

// Save writes the non-secret part of the config as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
