package invite

import (
	"time"

	"vrcinvited/internal/presence"
)

// Filter computes the invite candidate set from a presence snapshot.
//
// Exclusions, each independently sufficient to drop a player:
//   - the acting user's own id
//   - ids already in the group
//   - ids with a pending invite
//   - players present for less than minDwell
//
// Input order is preserved. A player with zero joins never appears in
// present, so no separate check is needed.
func Filter(present []presence.PresentUser, members, pending []string, selfID string, minDwell time.Duration, now time.Time) []Candidate {
	memberSet := toSet(members)
	pendingSet := toSet(pending)

	var out []Candidate
	for _, p := range present {
		if p.UserID == selfID {
			continue
		}
		if _, ok := memberSet[p.UserID]; ok {
			continue
		}
		if _, ok := pendingSet[p.UserID]; ok {
			continue
		}
		if now.Sub(p.JoinedAt) < minDwell {
			continue
		}
		out = append(out, Candidate{UserID: p.UserID, DisplayName: p.DisplayName, JoinedAt: p.JoinedAt})
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return m
}
