package logwatch

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.ParseInLocation(timestampLayout, s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func TestExtractSessionChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		line    string
		session string
	}{
		{
			name:    "joining or creating room",
			line:    "2024.01.15 20:01:02 Log        -  [Behaviour] Joining or Creating Room: wrld_abc:12345~private",
			session: "wrld_abc:12345~private",
		},
		{
			name:    "joining room",
			line:    "2024.01.15 20:01:02 Log        -  [Behaviour] Joining Room: wrld_abc:67890",
			session: "wrld_abc:67890",
		},
		{
			name:    "bare joining with room elsewhere",
			line:    "2024.01.15 20:01:02 Log -  Joining wrld_xyz:1 into Room",
			session: "wrld_xyz:1",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Extract(tt.line)
			if !ok {
				t.Fatalf("Extract(%q) = no event", tt.line)
			}
			if ev.Kind != KindSessionChanged {
				t.Fatalf("Kind = %v, want session changed", ev.Kind)
			}
			if ev.SessionID != tt.session {
				t.Fatalf("SessionID = %q, want %q", ev.SessionID, tt.session)
			}
			if !ev.At.Equal(ts("2024.01.15 20:01:02")) {
				t.Fatalf("At = %v", ev.At)
			}
		})
	}
}

func TestExtractPatternPriority(t *testing.T) {
	t.Parallel()
	// "Joining or Creating Room:" lines also match the bare "Joining " pattern;
	// the specific one must win.
	line := "2024.01.15 20:01:02 Log -  [Behaviour] Joining or Creating Room: wrld_a:1"
	ev, ok := Extract(line)
	if !ok || ev.SessionID != "wrld_a:1" {
		t.Fatalf("got %+v ok=%v, want session wrld_a:1", ev, ok)
	}
}

func TestExtractPlayerEvents(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		kind Kind
		dn   string
		uid  string
	}{
		{
			name: "joined",
			line: "2024.01.15 20:05:00 Log -  [Behaviour] OnPlayerJoined SomeName (usr_11111111-2222-3333-4444-555555555555)",
			kind: KindPlayerJoined,
			dn:   "SomeName",
			uid:  "usr_11111111-2222-3333-4444-555555555555",
		},
		{
			name: "joined multi word name",
			line: "2024.01.15 20:05:00 Log -  [Behaviour] OnPlayerJoined Some Name (usr_1)",
			kind: KindPlayerJoined,
			dn:   "Some Name",
			uid:  "usr_1",
		},
		{
			name: "left",
			line: "2024.01.15 20:06:00 Log -  [Behaviour] OnPlayerLeft Other Name (usr_2)",
			kind: KindPlayerLeft,
			dn:   "Other Name",
			uid:  "usr_2",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Extract(tt.line)
			if !ok {
				t.Fatalf("Extract(%q) = no event", tt.line)
			}
			if ev.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", ev.Kind, tt.kind)
			}
			if ev.DisplayName != tt.dn || ev.UserID != tt.uid {
				t.Fatalf("got (%q, %q), want (%q, %q)", ev.DisplayName, ev.UserID, tt.dn, tt.uid)
			}
		})
	}
}

func TestExtractMisses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
	}{
		{name: "empty", line: ""},
		{name: "no timestamp", line: "[Behaviour] OnPlayerJoined Name (usr_1)"},
		{name: "timestamp only", line: "2024.01.15 20:05:00 Log -  unrelated content"},
		{name: "joined without behaviour tag", line: "2024.01.15 20:05:00 Log -  OnPlayerJoined Name (usr_1)"},
		{name: "joining without room", line: "2024.01.15 20:05:00 Log -  Joining something"},
		{name: "malformed joined", line: "2024.01.15 20:05:00 Log -  [Behaviour] OnPlayerJoined"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if ev, ok := Extract(tt.line); ok {
				t.Fatalf("Extract(%q) = %+v, want miss", tt.line, ev)
			}
		})
	}
}
