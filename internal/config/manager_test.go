package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"paths": {"temp": "/data/staging"},
		"scheduler": {"enabled": true, "poll_interval": "15s", "timezone": "Asia/Jakarta"},
		"server": {"addr": ":8080"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Paths.Temp != "/data/staging" {
		t.Errorf("temp = %q", cfg.Paths.Temp)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.PollInterval != "15s" {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}

	// Unset fields pick up defaults.
	if cfg.Paths.Storage != "./Storage" {
		t.Errorf("default storage path = %q", cfg.Paths.Storage)
	}
	if cfg.Retention.MaxAgeDays != 730 {
		t.Errorf("default retention = %d", cfg.Retention.MaxAgeDays)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
paths:
  temp: ./staging
scheduler:
  enabled: true
  poll_interval: 20s
server:
  addr: ":5000"
  origins:
    - http://localhost:3000
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Paths.Temp != "./staging" {
		t.Errorf("temp = %q", cfg.Paths.Temp)
	}
	if len(cfg.Server.Origins) != 1 || cfg.Server.Origins[0] != "http://localhost:3000" {
		t.Errorf("origins = %v", cfg.Server.Origins)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"paths": {"tmep": "./x"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Error("misspelled field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"server": {"addr": ":5000"}}{"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Error("trailing JSON document accepted")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(filepath.Join(t.TempDir(), "nope.json")).Parse(); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"server": {"addr": ":7000"}}`)
	m := NewManager(path)

	if m.Get() != nil {
		t.Error("Get before Load returned a config")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Error("Get did not return the committed config")
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"server": {"addr": ":7000"}}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Error("subscriber received a different config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the update")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"20s", 20 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"-5s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: want error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got (%v, %v), want %v", tc.raw, got, err, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("test.field", "", time.Minute); err != nil || d != time.Minute {
		t.Errorf("empty default: got (%v, %v)", d, err)
	}
	if d, err := ParseDurationOrDefault("test.field", "5s", time.Minute); err != nil || d != 5*time.Second {
		t.Errorf("explicit value: got (%v, %v)", d, err)
	}
}
