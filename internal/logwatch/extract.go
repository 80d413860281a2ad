package logwatch

import (
	"regexp"
	"strings"
	"time"
)

// timestampLayout matches the fixed prefix VRChat writes on every log line.
const timestampLayout = "2006.01.02 15:04:05"

var timestampRe = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2} \d{2}:\d{2}:\d{2})`)

// roomRes are tried in order; the first match wins. The ordering matters:
// "Joining or Creating Room:" lines also contain the bare "Joining " prefix,
// so the most specific pattern has to come first.
var roomRes = []*regexp.Regexp{
	regexp.MustCompile(`Joining or Creating Room:\s+(\S+)`),
	regexp.MustCompile(`Joining Room:\s+(\S+)`),
	regexp.MustCompile(`Room:\s+(\S+)`),
	regexp.MustCompile(`Joining\s+(\S+)`),
}

var (
	playerJoinedRe = regexp.MustCompile(`OnPlayerJoined\s+(.+?)\s+\((\S+?)\)`)
	playerLeftRe   = regexp.MustCompile(`OnPlayerLeft\s+(.+?)\s+\((\S+?)\)`)
)

// Extract parses a single log line into at most one event.
//
// It is a pure function: no I/O, no state. Lines without a recognizable
// timestamp or pattern yield (zero, false) — a parse miss, not an error.
func Extract(line string) (Event, bool) {
	ts, ok := extractTimestamp(line)
	if !ok {
		return Event{}, false
	}

	if strings.Contains(line, "Joining") && strings.Contains(line, "Room") {
		for _, re := range roomRes {
			if m := re.FindStringSubmatch(line); m != nil {
				return Event{Kind: KindSessionChanged, At: ts, SessionID: strings.TrimSpace(m[1])}, true
			}
		}
		return Event{}, false
	}

	if strings.Contains(line, "[Behaviour] OnPlayerJoined") {
		if m := playerJoinedRe.FindStringSubmatch(line); m != nil {
			return Event{
				Kind:        KindPlayerJoined,
				At:          ts,
				DisplayName: strings.TrimSpace(m[1]),
				UserID:      strings.TrimSpace(m[2]),
			}, true
		}
		return Event{}, false
	}

	if strings.Contains(line, "[Behaviour] OnPlayerLeft") {
		if m := playerLeftRe.FindStringSubmatch(line); m != nil {
			return Event{
				Kind:        KindPlayerLeft,
				At:          ts,
				DisplayName: strings.TrimSpace(m[1]),
				UserID:      strings.TrimSpace(m[2]),
			}, true
		}
	}

	return Event{}, false
}

func extractTimestamp(line string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
