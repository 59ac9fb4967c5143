// Package party implements the Watch-Party Coordinator: the Room Store,
// the playback state machine, the ready/buffering consensus protocol, the
// heartbeat driver, and the per-connection session fan-out that ties them
// together.
package party

import (
	"sync"

	"github.com/google/uuid"
	"k8s.io/utils/set"
)

// AccessMode controls who may join a room.
type AccessMode string

const (
	AccessEveryone   AccessMode = "Everyone"
	AccessInviteOnly AccessMode = "InviteOnly"
	AccessByUser     AccessMode = "ByUser"
)

// Status is the playback state machine's state.
type Status string

const (
	StatusIdle      Status = "Idle"
	StatusWatching  Status = "Watching"
	StatusPaused    Status = "Paused"
	StatusBuffering Status = "Buffering"
)

// UserID identifies a user of the upstream identity service.
type UserID int64

// Participant is a user currently (or very recently) connected to a room.
type Participant struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
	Thumb    string `json:"thumb,omitempty"`
	JoinedAt int64  `json:"joined_at"`
}

// Room is one active watch party. All field access outside of the party
// package must go through Store/Room methods, which hold mu for the
// duration of any mutation.
type Room struct {
	mu sync.Mutex

	ID            uuid.UUID
	HostUserID    UserID
	Name          string
	HostUsername  string
	AccessMode    AccessMode
	InviteCode    string // present iff AccessMode == AccessInviteOnly
	CreatedAtMs   int64

	AllowedUserIDs set.Set[UserID]
	Participants   []Participant
	EpisodeQueue   []string

	MediaID      string
	MediaTitle   string
	DurationMs   int64
	Status       Status
	PositionMs   int64
	LastUpdateMs int64

	// ReadyUsers and BufferingUsers are membership sets the playback state
	// machine (fsm.go) clears wholesale on every consensus transition;
	// SyncedUsers stays a plain bool map since "synced" is a per-user flag,
	// not a set the FSM ever needs to union or clear all at once.
	ReadyUsers     set.Set[UserID]
	BufferingUsers set.Set[UserID]
	SyncedUsers    map[UserID]bool

	connections map[UserID]*Client
}

// RoomView is the JSON-serializable snapshot of a Room returned from the
// REST surface and carried in room_state messages. It never exposes the
// connection registry.
type RoomView struct {
	ID             uuid.UUID     `json:"id"`
	HostUserID     UserID        `json:"host_user_id"`
	Name           string        `json:"name"`
	HostUsername   string        `json:"host_username"`
	AccessMode     AccessMode    `json:"access_mode"`
	InviteCode     string        `json:"invite_code,omitempty"`
	MediaID        string        `json:"media_id"`
	MediaTitle     string        `json:"media_title,omitempty"`
	DurationMs     int64         `json:"duration_ms"`
	Status         Status        `json:"status"`
	PositionMs     int64         `json:"position_ms"`
	Participants   []Participant `json:"participants"`
	EpisodeQueue   []string      `json:"episode_queue"`
	CreatedAtMs    int64         `json:"created_at"`
}
