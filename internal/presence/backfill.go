package presence

import (
	"time"

	"vrcinvited/internal/logwatch"
)

// Backfill rebuilds the model from an existing log in two passes:
//
//  1. find the most recent session change (the log is append-ordered but may
//     contain many historical session changes; last wins),
//  2. replay only the events at or after that session's start.
//
// A single forward pass cannot know in advance which session is current,
// hence the two explicit passes. Returns false when the lines contain no
// session change at all; the tracker is left untouched in that case.
func (t *Tracker) Backfill(lines []string) bool {
	start, ok := LatestSessionChange(lines)
	if !ok {
		return false
	}
	t.Reset()
	for _, ev := range ReplaySince(lines, start.At) {
		t.Apply(ev)
	}
	return true
}

// LatestSessionChange scans all lines and returns the session-change event
// with the greatest timestamp. On equal timestamps the later line wins, which
// matches append order.
func LatestSessionChange(lines []string) (logwatch.Event, bool) {
	var (
		best  logwatch.Event
		found bool
	)
	for _, line := range lines {
		ev, ok := logwatch.Extract(line)
		if !ok || ev.Kind != logwatch.KindSessionChanged {
			continue
		}
		if !found || !ev.At.Before(best.At) {
			best = ev
			found = true
		}
	}
	return best, found
}

// ReplaySince extracts all events from the lines and drops those timestamped
// strictly before since.
func ReplaySince(lines []string, since time.Time) []logwatch.Event {
	var evs []logwatch.Event
	for _, line := range lines {
		ev, ok := logwatch.Extract(line)
		if !ok || ev.At.Before(since) {
			continue
		}
		evs = append(evs, ev)
	}
	return evs
}
