package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("api:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.API.Port)
	}
	if got := cfg.Capacity(); got != 6 {
		t.Errorf("capacity = %d, want 6", got)
	}
	if cfg.Trunks[0].ID != "204" || cfg.Trunks[2].ID != "206" {
		t.Errorf("unexpected default trunk order: %+v", cfg.Trunks)
	}
	if cfg.Asterisk.Context != "llamada_automatica" || cfg.Asterisk.WaitTime != 45 {
		t.Errorf("unexpected asterisk defaults: %+v", cfg.Asterisk)
	}
	if cfg.Dialer.RetryInterval != 5*time.Second {
		t.Errorf("retry interval = %v", cfg.Dialer.RetryInterval)
	}
	if cfg.Dialer.StaleCallTimeout != 0 {
		t.Errorf("stale timeout should default to disabled, got %v", cfg.Dialer.StaleCallTimeout)
	}
}

func TestParseTrunksAndDurations(t *testing.T) {
	yml := `
trunks:
  - id: a
    channels: 4
  - id: b
    channels: 1
dialer:
  retry_interval: 250ms
  stale_call_timeout: 2m
`
	cfg, err := Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Trunks) != 2 || cfg.Capacity() != 5 {
		t.Fatalf("trunks = %+v", cfg.Trunks)
	}
	if cfg.Dialer.RetryInterval != 250*time.Millisecond {
		t.Errorf("retry interval = %v", cfg.Dialer.RetryInterval)
	}
	if cfg.Dialer.StaleCallTimeout != 2*time.Minute {
		t.Errorf("stale timeout = %v", cfg.Dialer.StaleCallTimeout)
	}
}

func TestValidateRejectsBadTrunks(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"zero channels", "trunks:\n  - id: a\n    channels: 0\n"},
		{"missing id", "trunks:\n  - channels: 2\n"},
		{"duplicate", "trunks:\n  - id: a\n    channels: 1\n  - id: a\n    channels: 1\n"},
		{"bad driver", "database:\n  driver: postgres\n"},
		{"ami originate without ami", "asterisk:\n  originate: ami\n"},
		{"unknown originate", "asterisk:\n  originate: fax\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTODIALER_DB_PASSWORD", "s3cret")
	t.Setenv("AUTODIALER_DB_DRIVER", "mysql")
	t.Setenv("AUTODIALER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Parse([]byte("database:\n  password: fromfile\n  database: dialer\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("password = %q", cfg.Database.Password)
	}
	if cfg.Database.Database != "dialer" {
		t.Errorf("database = %q, file value should survive", cfg.Database.Database)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	want := "root:s3cret@tcp(:3306)/dialer?parseTime=true&charset=utf8mb4&clientFoundRows=true"
	cfg.Database.Username = "root"
	if got := cfg.Database.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autodialer.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Log.Debug() {
		t.Error("expected debug logging")
	}
}
