package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalJSON = `{
  "vrchat": {"auth_cookie": "authcookie_x", "group_id": "grp_abc"}
}`

const minimalYAML = `
vrchat:
  auth_cookie: authcookie_x
  group_id: grp_abc
invite:
  workers: 3
  delay: 2s
`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VRChat.GroupID != "grp_abc" {
		t.Fatalf("GroupID = %s", cfg.VRChat.GroupID)
	}
	if got := cfg.Invite.WorkersOrDefault(); got != DefaultInviteWorkers {
		t.Fatalf("workers = %d, want default %d", got, DefaultInviteWorkers)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", minimalYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Invite.Workers != 3 {
		t.Fatalf("workers = %d, want 3", cfg.Invite.Workers)
	}
	d, err := cfg.Invite.DelayOrDefault()
	if err != nil || d != 2*time.Second {
		t.Fatalf("delay = %v (%v), want 2s", d, err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{
  "vrchat": {"auth_cookie": "x", "group_id": "g"},
  "typo_section": {}
}`))
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "typo_section") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		var c Config
		c.VRChat.AuthCookie = "x"
		c.VRChat.GroupID = "grp_1"
		return &c
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{name: "missing group", mutate: func(c *Config) { c.VRChat.GroupID = "" }, substr: "group_id"},
		{name: "missing cookie", mutate: func(c *Config) { c.VRChat.AuthCookie = " " }, substr: "auth_cookie"},
		{name: "bad poll interval", mutate: func(c *Config) { c.Watcher.PollInterval = "soon" }, substr: "poll_interval"},
		{name: "bad delay", mutate: func(c *Config) { c.Invite.Delay = "-1s" }, substr: "delay"},
		{
			name:   "schedule enabled without spec",
			mutate: func(c *Config) { c.Schedule = &ScheduleConfig{Enabled: true} },
			substr: "schedule.spec",
		},
		{
			name:   "notify enabled without chat",
			mutate: func(c *Config) { c.Notify = &NotifyConfig{Enabled: true, Token: "t"} },
			substr: "chat_id",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.substr)
			}
		})
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("k", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("k", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("k", "nope"); err == nil {
		t.Fatal("expected error for garbage duration")
	}
	if _, err := ParseDurationField("k", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if d, err := ParseDurationOrDefault("k", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
}
