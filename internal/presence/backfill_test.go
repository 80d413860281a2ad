package presence

import (
	"testing"
	"time"

	"vrcinvited/internal/logwatch"
)

const (
	lineSession1 = "2024.01.15 20:00:00 Log -  [Behaviour] Joining or Creating Room: wrld_a:1"
	lineJoinU1   = "2024.01.15 20:01:00 Log -  [Behaviour] OnPlayerJoined First User (usr_1)"
	lineSession2 = "2024.01.15 20:02:00 Log -  [Behaviour] Joining or Creating Room: wrld_b:2"
	lineJoinU2   = "2024.01.15 20:03:00 Log -  [Behaviour] OnPlayerJoined Second User (usr_2)"
)

func TestBackfillKeepsOnlyLatestSession(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	ok := tr.Backfill([]string{lineSession1, lineJoinU1, lineSession2, lineJoinU2})
	if !ok {
		t.Fatal("Backfill = false, want true")
	}

	snap := tr.Snapshot(time.Now())
	if snap.SessionID != "wrld_b:2" {
		t.Fatalf("SessionID = %s, want wrld_b:2", snap.SessionID)
	}
	if len(snap.Present) != 1 || snap.Present[0].UserID != "usr_2" {
		t.Fatalf("present = %+v, want only usr_2", snap.Present)
	}
}

func TestBackfillNoSessionLeavesTrackerUntouched(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	tr.Apply(logwatch.Event{Kind: logwatch.KindPlayerJoined, At: time.Now(), UserID: "usr_x", DisplayName: "X"})

	if tr.Backfill([]string{lineJoinU1, "garbage", ""}) {
		t.Fatal("Backfill = true with no session change line")
	}
	snap := tr.Snapshot(time.Now())
	if len(snap.Present) != 1 || snap.Present[0].UserID != "usr_x" {
		t.Fatalf("present = %+v, want pre-existing usr_x", snap.Present)
	}
}

func TestLatestSessionChangeTieBreaksToLaterLine(t *testing.T) {
	t.Parallel()
	// Two session changes with the same timestamp: append order wins.
	lines := []string{
		"2024.01.15 20:00:00 Log -  [Behaviour] Joining or Creating Room: wrld_a:1",
		"2024.01.15 20:00:00 Log -  [Behaviour] Joining or Creating Room: wrld_b:2",
	}
	ev, ok := LatestSessionChange(lines)
	if !ok {
		t.Fatal("no session change found")
	}
	if ev.SessionID != "wrld_b:2" {
		t.Fatalf("SessionID = %s, want wrld_b:2", ev.SessionID)
	}
}

func TestReplaySinceDropsEarlierEvents(t *testing.T) {
	t.Parallel()
	lines := []string{lineSession1, lineJoinU1, lineSession2, lineJoinU2}
	since := time.Date(2024, 1, 15, 20, 2, 0, 0, time.Local)

	evs := ReplaySince(lines, since)
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	if evs[0].Kind != logwatch.KindSessionChanged || evs[1].UserID != "usr_2" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}
