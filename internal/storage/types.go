package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// InviteRecord is one terminal invite outcome.
// Keep it compact and schema-stable.
type InviteRecord struct {
	At          time.Time
	GroupID     string
	UserID      string
	DisplayName string
	Outcome     string // invited | failed | skipped
	Detail      string // failure reason or skip cause, empty on success
}
