package presence

import (
	"testing"
	"time"

	"vrcinvited/internal/logwatch"
)

func at(min int) time.Time {
	return time.Date(2024, 1, 15, 20, min, 0, 0, time.Local)
}

func join(uid, name string, t time.Time) logwatch.Event {
	return logwatch.Event{Kind: logwatch.KindPlayerJoined, At: t, UserID: uid, DisplayName: name}
}

func leave(uid, name string, t time.Time) logwatch.Event {
	return logwatch.Event{Kind: logwatch.KindPlayerLeft, At: t, UserID: uid, DisplayName: name}
}

func session(id string, t time.Time) logwatch.Event {
	return logwatch.Event{Kind: logwatch.KindSessionChanged, At: t, SessionID: id}
}

func TestPresenceInvariant(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		events  []logwatch.Event
		present []string
	}{
		{
			name:    "join makes present",
			events:  []logwatch.Event{join("u1", "A", at(0))},
			present: []string{"u1"},
		},
		{
			name:    "join then leave",
			events:  []logwatch.Event{join("u1", "A", at(0)), leave("u1", "A", at(1))},
			present: nil,
		},
		{
			name:    "rejoin after leave",
			events:  []logwatch.Event{join("u1", "A", at(0)), leave("u1", "A", at(1)), join("u1", "A", at(2))},
			present: []string{"u1"},
		},
		{
			name:    "leave without join never present",
			events:  []logwatch.Event{leave("u1", "A", at(0))},
			present: nil,
		},
		{
			name:    "extra leave does not go negative",
			events:  []logwatch.Event{leave("u1", "A", at(0)), join("u1", "A", at(1))},
			present: nil, // 1 join vs 1 leave: not strictly more joins
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			for _, ev := range tt.events {
				tr.Apply(ev)
			}
			snap := tr.Snapshot(at(10))
			if len(snap.Present) != len(tt.present) {
				t.Fatalf("present = %d users, want %d", len(snap.Present), len(tt.present))
			}
			for i, uid := range tt.present {
				if snap.Present[i].UserID != uid {
					t.Fatalf("present[%d] = %s, want %s", i, snap.Present[i].UserID, uid)
				}
			}
		})
	}
}

func TestDoubleJoinKeepsLatestJoinTime(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	tr.Apply(join("u1", "A", at(0)))
	tr.Apply(join("u1", "A", at(5)))

	snap := tr.Snapshot(at(10))
	if len(snap.Present) != 1 {
		t.Fatalf("present = %d, want 1", len(snap.Present))
	}
	if !snap.Present[0].JoinedAt.Equal(at(5)) {
		t.Fatalf("JoinedAt = %v, want %v", snap.Present[0].JoinedAt, at(5))
	}
}

func TestSessionChangeResetsRecords(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	tr.Apply(session("wrld_a:1", at(0)))
	tr.Apply(join("u1", "A", at(1)))
	tr.Apply(join("u2", "B", at(2)))

	tr.Apply(session("wrld_b:2", at(3)))
	snap := tr.Snapshot(at(10))
	if snap.SessionID != "wrld_b:2" {
		t.Fatalf("SessionID = %s", snap.SessionID)
	}
	if len(snap.Present) != 0 {
		t.Fatalf("present = %v, want empty after session change", snap.Present)
	}
}

func TestDisplayNameTracksLatest(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	tr.Apply(join("u1", "OldName", at(0)))
	tr.Apply(leave("u1", "NewName", at(1)))
	tr.Apply(join("u1", "", at(2))) // empty name keeps the last seen one

	snap := tr.Snapshot(at(10))
	if len(snap.Present) != 1 || snap.Present[0].DisplayName != "NewName" {
		t.Fatalf("snapshot = %+v, want NewName present", snap.Present)
	}
}

func TestSnapshotOrderIsDeterministic(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	tr.Apply(join("u2", "B", at(1)))
	tr.Apply(join("u1", "A", at(3)))
	tr.Apply(join("u3", "C", at(1))) // same join time as u2: user id breaks the tie

	snap := tr.Snapshot(at(10))
	got := []string{}
	for _, p := range snap.Present {
		got = append(got, p.UserID)
	}
	want := []string{"u2", "u3", "u1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
