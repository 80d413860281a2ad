package config

import "time"

// Config is the root configuration document.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// The file may be JSON or YAML; YAML is coerced to JSON so both formats go
// through the same strict decoder.
type Config struct {
	VRChat  VRChatConfig  `json:"vrchat"`
	Watcher WatcherConfig `json:"watcher"`
	Invite  InviteConfig  `json:"invite"`
	Logging LoggingConfig `json:"logging"`

	// Schedule enables unattended invite runs on a cron spec.
	Schedule *ScheduleConfig `json:"schedule,omitempty"`

	Notify  *NotifyConfig  `json:"notify,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

// VRChatConfig configures the remote API client.
//
// AuthCookie is a pre-established `auth=...` session cookie. This daemon does
// not perform the login/2FA handshake; obtain the cookie out of band.
type VRChatConfig struct {
	AuthCookie string `json:"auth_cookie"`
	UserAgent  string `json:"user_agent,omitempty"`
	GroupID    string `json:"group_id"`
	BaseURL    string `json:"base_url,omitempty"`

	// RatePerSec caps outbound API calls (token bucket). 0 keeps the default.
	RatePerSec     float64 `json:"rate_per_sec,omitempty"`
	RequestTimeout string  `json:"request_timeout,omitempty"`
}

// WatcherConfig configures log tailing.
//
// LogPath overrides auto-discovery of the newest VRChat output log.
type WatcherConfig struct {
	LogPath      string `json:"log_path,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`

	// Backfill scans the existing log on start to rebuild presence.
	// Pointer so "omitted" defaults to true.
	Backfill *bool `json:"backfill,omitempty"`
}

// InviteConfig configures the dispatch engine.
type InviteConfig struct {
	Workers int `json:"workers,omitempty"`

	// Delay is the per-worker pause after each processed candidate.
	// Aggregate throughput is workers/delay.
	Delay string `json:"delay,omitempty"`

	// MinDwell is how long a player must have been in the instance before
	// becoming invite-eligible.
	MinDwell string `json:"min_dwell,omitempty"`
}

// ScheduleConfig enables periodic unattended runs.
// Spec accepts a cron expression (5 or 6 fields) or "@every 10m".
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"` // pointer: omitted means true
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
	Mirror struct {
		Enabled    bool   `json:"enabled"`
		MinLevel   string `json:"min_level,omitempty"`
		RatePerSec int    `json:"rate_per_sec,omitempty"`
	} `json:"mirror,omitempty"`
}

// NotifyConfig controls the optional Telegram summary sink.
type NotifyConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token,omitempty"`
	ChatID      int64  `json:"chat_id,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// StorageConfig controls the optional invite journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./vrcinvited_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// Defaults applied when fields are omitted/zero.
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultInviteWorkers  = 5
	DefaultInviteDelay    = 5 * time.Second
	DefaultMinDwell       = 5 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultAPIRatePerSec  = 1.0
)

func (w WatcherConfig) PollIntervalOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("watcher.poll_interval", w.PollInterval, DefaultPollInterval)
}

func (w WatcherConfig) BackfillOrDefault() bool {
	if w.Backfill == nil {
		return true
	}
	return *w.Backfill
}

func (i InviteConfig) WorkersOrDefault() int {
	if i.Workers <= 0 {
		return DefaultInviteWorkers
	}
	return i.Workers
}

func (i InviteConfig) DelayOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("invite.delay", i.Delay, DefaultInviteDelay)
}

func (i InviteConfig) MinDwellOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("invite.min_dwell", i.MinDwell, DefaultMinDwell)
}

func (v VRChatConfig) RequestTimeoutOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("vrchat.request_timeout", v.RequestTimeout, DefaultRequestTimeout)
}

func (l LoggingConfig) ConsoleOrDefault() bool {
	if l.Console == nil {
		return true
	}
	return *l.Console
}
