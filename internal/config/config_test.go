package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Line.ChunkSize != 900 {
		t.Errorf("ChunkSize = %d, want 900", cfg.Line.ChunkSize)
	}
	if cfg.Memory.Window != 12 {
		t.Errorf("Memory.Window = %d, want 12", cfg.Memory.Window)
	}
	if cfg.Line.FastAck.D() != 1200*time.Millisecond {
		t.Errorf("FastAck = %v, want 1.2s", cfg.Line.FastAck.D())
	}
	if cfg.Database.Mode != "sqlite" {
		t.Errorf("Database.Mode = %q, want sqlite", cfg.Database.Mode)
	}
}

func TestLoadJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// comments and trailing commas are allowed
		gateway: { port: 9090, },
		line: { push_delay: '250ms', fast_ack: 0, default_persona: "Zeta" },
		hive: { max_turns: 42, default_rounds: 2 },
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Gateway.Port)
	}
	if cfg.Line.PushDelay.D() != 250*time.Millisecond {
		t.Errorf("PushDelay = %v, want 250ms", cfg.Line.PushDelay.D())
	}
	if cfg.Line.FastAck.D() != 0 {
		t.Errorf("FastAck = %v, want 0", cfg.Line.FastAck.D())
	}
	if cfg.Line.DefaultPersona != "Zeta" {
		t.Errorf("DefaultPersona = %q, want Zeta", cfg.Line.DefaultPersona)
	}
	if cfg.Hive.MaxTurns != MaxHiveTurns {
		t.Errorf("MaxTurns = %d, want clamp to %d", cfg.Hive.MaxTurns, MaxHiveTurns)
	}
	if cfg.Hive.DefaultRounds != 2 {
		t.Errorf("DefaultRounds = %d, want 2", cfg.Hive.DefaultRounds)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("LINE_CHANNEL_SECRET", "sec")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "tok")
	t.Setenv("WAIBON_OWNER_ID", "owner-1")
	t.Setenv("DATABASE_URL", "postgres://localhost/waibon")
	t.Setenv("WAIBON_LINE_PUSHDELAY", "1s")
	t.Setenv("WAIBON_GATEWAY_PORT", "7000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"api key", cfg.LLM.APIKey, "sk-test"},
		{"model", cfg.LLM.Model, "gpt-4o"},
		{"secret", cfg.Line.ChannelSecret, "sec"},
		{"token", cfg.Line.ChannelAccessToken, "tok"},
		{"owner", cfg.Tenant.OwnerID, "owner-1"},
		{"mode", cfg.Database.Mode, "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
	if cfg.Line.PushDelay.D() != time.Second {
		t.Errorf("PushDelay = %v, want 1s", cfg.Line.PushDelay.D())
	}
	if cfg.Gateway.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Gateway.Port)
	}
	if !cfg.Line.HasEnvChannel() {
		t.Error("HasEnvChannel = false, want true")
	}
	if !cfg.Database.IsPostgres() {
		t.Error("IsPostgres = false, want true")
	}
}

func TestSecretsNeverSerialized(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Line.ChannelSecret = "line-secret"
	cfg.Database.PostgresDSN = "postgres://user:pw@host/db"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"sk-secret", "line-secret", "user:pw"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("serialized config leaks %q", secret)
		}
	}

	presence := cfg.SecretPresence()
	if !presence["OPENAI_API_KEY"] || presence["LINE_CHANNEL_ACCESS_TOKEN"] {
		t.Errorf("SecretPresence = %v", presence)
	}
}

func TestDurationDecode(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1.2s", 1200 * time.Millisecond},
		{"900", 900 * time.Millisecond},
		{`"250ms"`, 250 * time.Millisecond},
		{"'2m'", 2 * time.Minute},
		{"", 0},
	}
	for _, tt := range tests {
		var d Duration
		if err := d.UnmarshalJSON([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalJSON(%q): %v", tt.in, err)
		}
		if d.D() != tt.want {
			t.Errorf("UnmarshalJSON(%q) = %v, want %v", tt.in, d.D(), tt.want)
		}
	}

	var d Duration
	if err := d.Decode("soon"); err == nil {
		t.Error("Decode(soon) should fail")
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var text, jsonOut bytes.Buffer
	logger := SetupLoggerWithWriters(&text, &jsonOut, slog.LevelInfo)
	logger.Info("hello", "user", "U1")
	logger.Debug("hidden")

	if !strings.Contains(text.String(), "msg=hello") {
		t.Errorf("text output = %q", text.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(jsonOut.Bytes(), &rec); err != nil {
		t.Fatalf("json output not JSON: %v (%q)", err, jsonOut.String())
	}
	if rec["user"] != "U1" {
		t.Errorf("json user = %v, want U1", rec["user"])
	}
	if strings.Contains(text.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}
}

func TestParseLogLevel(t *testing.T) {
	if ParseLogLevel("DEBUG") != slog.LevelDebug {
		t.Error("DEBUG should map to debug")
	}
	if ParseLogLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should map to info")
	}
}
