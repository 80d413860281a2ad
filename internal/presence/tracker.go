package presence

import (
	"sort"
	"sync"
	"time"

	"vrcinvited/internal/logwatch"
)

// UserRecord is the per-player join/leave history within the current session.
// Owned by the Tracker; mutated only via Apply.
type UserRecord struct {
	UserID      string
	DisplayName string // last seen, mutable
	Joins       []time.Time
	Leaves      []time.Time
}

// present is the invariant the whole model hangs on: a player is in the
// instance iff they have more joins than leaves. A leave without a matching
// join is recorded but never removes presence retroactively.
func (r *UserRecord) present() bool {
	return len(r.Joins) > len(r.Leaves)
}

func (r *UserRecord) lastJoin() time.Time {
	var last time.Time
	for _, j := range r.Joins {
		if j.After(last) {
			last = j
		}
	}
	return last
}

// PresentUser is one row of a Snapshot.
type PresentUser struct {
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

// Snapshot is a derived, point-in-time view. Never persisted.
type Snapshot struct {
	SessionID string
	AsOf      time.Time
	Present   []PresentUser
}

// Tracker derives "who is currently in the active session" from extracted
// log events. Safe for concurrent use: the session watcher applies events
// while other goroutines take snapshots.
type Tracker struct {
	mu        sync.Mutex
	sessionID string
	users     map[string]*UserRecord
}

func NewTracker() *Tracker {
	return &Tracker{users: map[string]*UserRecord{}}
}

// Apply folds one event into the model.
//
// A session change resets all user records: presence history does not carry
// across sessions.
func (t *Tracker) Apply(ev logwatch.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case logwatch.KindSessionChanged:
		t.sessionID = ev.SessionID
		t.users = map[string]*UserRecord{}
	case logwatch.KindPlayerJoined:
		r := t.record(ev)
		r.Joins = append(r.Joins, ev.At)
	case logwatch.KindPlayerLeft:
		r := t.record(ev)
		r.Leaves = append(r.Leaves, ev.At)
	}
}

// record returns the user's record, creating it on first sight and keeping
// the display name current.
func (t *Tracker) record(ev logwatch.Event) *UserRecord {
	r := t.users[ev.UserID]
	if r == nil {
		r = &UserRecord{UserID: ev.UserID}
		t.users[ev.UserID] = r
	}
	if ev.DisplayName != "" {
		r.DisplayName = ev.DisplayName
	}
	return r
}

// SessionID returns the current session id ("" before any session change).
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Snapshot derives the present-user set. JoinedAt is the most recent join of
// each present player. Rows are sorted by join time (ties by user id) so the
// output is deterministic.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{SessionID: t.sessionID, AsOf: now}
	for _, r := range t.users {
		if !r.present() {
			continue
		}
		snap.Present = append(snap.Present, PresentUser{
			UserID:      r.UserID,
			DisplayName: r.DisplayName,
			JoinedAt:    r.lastJoin(),
		})
	}
	sort.Slice(snap.Present, func(i, j int) bool {
		a, b := snap.Present[i], snap.Present[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	return snap
}

// Reset drops all state (session id included).
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = ""
	t.users = map[string]*UserRecord{}
}
