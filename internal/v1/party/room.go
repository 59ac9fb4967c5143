package party

import (
	"github.com/google/uuid"
	"k8s.io/utils/set"
)

// newRoom constructs a Room in the Idle state with the given host recorded
// as HostUserID and no participants. clock is used only to stamp CreatedAtMs/LastUpdateMs;
// callers pass party.SystemClock in production and a fake in tests.
func newRoom(clock Clock, id uuid.UUID, hostID UserID, hostUsername, name string, mode AccessMode, allowed []UserID) *Room {
	now := clock.NowMs()
	r := &Room{
		ID:             id,
		HostUserID:     hostID,
		HostUsername:   hostUsername,
		Name:           name,
		AccessMode:     mode,
		CreatedAtMs:    now,
		AllowedUserIDs: set.New(allowed...),
		Status:         StatusIdle,
		LastUpdateMs:   now,
		ReadyUsers:     set.New[UserID](),
		BufferingUsers: set.New[UserID](),
		SyncedUsers:    make(map[UserID]bool),
		connections:    make(map[UserID]*Client),
	}
	return r
}

// computePositionMs returns the effective position: position_ms advanced by
// elapsed wall-clock time while Watching, otherwise position_ms verbatim.
// Caller must hold the room's lock (Room.mu).
func computePositionMs(r *Room, nowMs int64) int64 {
	if r.Status != StatusWatching {
		return r.PositionMs
	}
	return r.PositionMs + (nowMs - r.LastUpdateMs)
}

// snapshotPosition freezes the effective position into PositionMs and resets
// LastUpdateMs to now. Must be called before leaving Watching, and is also
// what the heartbeat driver calls every tick.
func snapshotPosition(r *Room, nowMs int64) {
	r.PositionMs = computePositionMs(r, nowMs)
	r.LastUpdateMs = nowMs
}

// view produces the JSON-safe snapshot of a room. Caller must hold the lock.
func view(r *Room, nowMs int64) RoomView {
	participants := make([]Participant, len(r.Participants))
	copy(participants, r.Participants)
	queue := make([]string, len(r.EpisodeQueue))
	copy(queue, r.EpisodeQueue)
	return RoomView{
		ID:           r.ID,
		HostUserID:   r.HostUserID,
		Name:         r.Name,
		HostUsername: r.HostUsername,
		AccessMode:   r.AccessMode,
		InviteCode:   r.InviteCode,
		MediaID:      r.MediaID,
		MediaTitle:   r.MediaTitle,
		DurationMs:   r.DurationMs,
		Status:       r.Status,
		PositionMs:   computePositionMs(r, nowMs),
		Participants: participants,
		EpisodeQueue: queue,
		CreatedAtMs:  r.CreatedAtMs,
	}
}

// addParticipant adds or refreshes a participant's joined_at timestamp.
// Returns true if this is a new participant (not a reconnect).
func addParticipant(r *Room, u UserID, username, thumb string, nowMs int64) bool {
	for i := range r.Participants {
		if r.Participants[i].UserID == u {
			r.Participants[i].JoinedAt = nowMs
			r.Participants[i].Username = username
			if thumb != "" {
				r.Participants[i].Thumb = thumb
			}
			return false
		}
	}
	r.Participants = append(r.Participants, Participant{
		UserID:   u,
		Username: username,
		Thumb:    thumb,
		JoinedAt: nowMs,
	})
	return true
}

// removeParticipant drops a user from the participant list, the ready set,
// the buffering set, and the synced-users index. Returns true if the room
// is now empty and should be deleted by the caller.
func removeParticipant(r *Room, u UserID) (empty bool) {
	for i := range r.Participants {
		if r.Participants[i].UserID == u {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			break
		}
	}
	delete(r.ReadyUsers, u)
	delete(r.BufferingUsers, u)
	delete(r.SyncedUsers, u)
	delete(r.connections, u)
	return len(r.Participants) == 0
}

// isHost reports whether u is the room's host.
func isHost(r *Room, u UserID) bool {
	return r.HostUserID == u
}

// connectedUserIDs returns the set of currently-connected user ids. Used by
// the AllReady consensus check.
func connectedUserIDs(r *Room) set.Set[UserID] {
	out := make(set.Set[UserID], len(r.connections))
	for uid := range r.connections {
		out.Insert(uid)
	}
	return out
}

// --- Queue operations (host-ungated, per original_source/src-actix/watch_party/queue.rs) ---

func queueAdd(r *Room, mediaID string) {
	r.EpisodeQueue = append(r.EpisodeQueue, mediaID)
}

func queueRemove(r *Room, index int) bool {
	if index < 0 || index >= len(r.EpisodeQueue) {
		return false
	}
	r.EpisodeQueue = append(r.EpisodeQueue[:index], r.EpisodeQueue[index+1:]...)
	return true
}

func queueReorder(r *Room, from, to int) bool {
	if from < 0 || from >= len(r.EpisodeQueue) || to < 0 || to >= len(r.EpisodeQueue) {
		return false
	}
	item := r.EpisodeQueue[from]
	r.EpisodeQueue = append(r.EpisodeQueue[:from], r.EpisodeQueue[from+1:]...)
	r.EpisodeQueue = append(r.EpisodeQueue[:to], append([]string{item}, r.EpisodeQueue[to:]...)...)
	return true
}

func queueClear(r *Room) {
	r.EpisodeQueue = nil
}

// nextInQueue pops and returns the first queued media id, or "" if empty.
func nextInQueue(r *Room) (string, bool) {
	if len(r.EpisodeQueue) == 0 {
		return "", false
	}
	next := r.EpisodeQueue[0]
	r.EpisodeQueue = r.EpisodeQueue[1:]
	return next, true
}
