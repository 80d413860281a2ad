package invite

import (
	"context"
	"time"

	"vrcinvited/internal/vrc"
)

// Candidate is one invite-eligible player. Built per run by Filter, consumed
// once by the engine, then discarded.
type Candidate struct {
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

// Remote is the slice of the VRChat API the engine needs. *vrc.Client
// implements it; tests substitute fakes.
type Remote interface {
	// GroupMember returns vrc.ErrNotFound (wrapped) when the user is not a
	// member — the expected answer on the invite path.
	GroupMember(ctx context.Context, groupID, userID string) (*vrc.Membership, error)
	GroupInvites(ctx context.Context, groupID string) ([]string, error)
	CreateGroupInvite(ctx context.Context, groupID, userID string) error
}

// Progress reports after every state-changing decision:
// (invited so far, total candidates, human-readable message).
type Progress func(completed, total int, message string)

// Result aggregates one dispatch run. Counters are monotone within a run and
// sum to at most Total.
type Result struct {
	Total   int
	Invited int
	Failed  int
	Skipped int

	// Stopped distinguishes cooperative cancellation from completion.
	Stopped bool

	// Failures preserves per-candidate failure detail for reporting.
	Failures []string

	Message string
}

// Processed returns how many candidates reached a terminal outcome.
func (r Result) Processed() int { return r.Invited + r.Failed + r.Skipped }

// InviteOutcome values recorded to the invite journal.
const (
	OutcomeInvited = "invited"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Recorder receives one record per terminal candidate outcome.
// Wired to the storage layer when a journal is configured.
type Recorder interface {
	RecordInvite(ctx context.Context, groupID, userID, displayName, outcome, detail string) error
}

// RunSummary is published on the event bus when a dispatch run ends.
type RunSummary struct {
	GroupID string        `json:"group_id"`
	Total   int           `json:"total"`
	Invited int           `json:"invited"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Stopped bool          `json:"stopped"`
	Took    time.Duration `json:"took"`
}
