package logwatch

import "time"

// Kind discriminates the event variants extracted from the VRChat log.
type Kind int

const (
	// KindSessionChanged: the client joined (or created) a room/instance.
	KindSessionChanged Kind = iota + 1
	// KindPlayerJoined: a player entered the current instance.
	KindPlayerJoined
	// KindPlayerLeft: a player left the current instance.
	KindPlayerLeft
)

func (k Kind) String() string {
	switch k {
	case KindSessionChanged:
		return "session_changed"
	case KindPlayerJoined:
		return "player_joined"
	case KindPlayerLeft:
		return "player_left"
	default:
		return "unknown"
	}
}

// Event is one fact extracted from a single log line.
//
// SessionID is set only for KindSessionChanged; UserID/DisplayName only for
// the player variants. At is the wall-clock timestamp parsed from the line.
type Event struct {
	Kind Kind
	At   time.Time

	SessionID string

	UserID      string
	DisplayName string
}
