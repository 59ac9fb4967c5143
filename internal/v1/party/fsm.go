package party

import "k8s.io/utils/set"

// This file implements the playback state machine described in spec §4.4:
//
//	Idle --(MediaChange, Ready consensus pending)--> Idle
//	Idle --(AllReady)--> Watching
//	Watching --(Pause)--> Paused            [snapshot position]
//	Watching --(Buffering)--> Buffering     [snapshot position]
//	Paused --(Play, no one buffering)--> Watching
//	Buffering --(Play from that user, no one else buffering)--> Watching
//	Buffering --(Buffering again)--> Buffering   [idempotent]
//	any --(Seek)--> same state, position updated
//	any --(MediaChange to a NEW media_id)--> Idle
//
// All functions here assume the caller already holds the owning Room's lock
// (Room.mu) and that now is the wall-clock time in ms to stamp any
// snapshot with.

// applyMediaChange switches the loaded media. It is a no-op, per spec, if
// mediaID already equals the room's current MediaID — this is what makes
// MediaChange idempotent (§8 round-trip law, Scenario F).
func applyMediaChange(r *Room, mediaID, title string, durationMs int64, now int64) (changed bool) {
	if r.MediaID == mediaID {
		return false
	}
	r.MediaID = mediaID
	r.MediaTitle = title
	r.DurationMs = durationMs
	r.PositionMs = 0
	r.LastUpdateMs = now
	r.Status = StatusIdle
	r.ReadyUsers = set.New[UserID]()
	r.BufferingUsers = set.New[UserID]()
	return true
}

// applyPause transitions into Paused. It snapshots the effective position
// first, then replaces it with the position the sender reported.
func applyPause(r *Room, positionMs int64, now int64) {
	snapshotPosition(r, now)
	r.PositionMs = positionMs
	r.LastUpdateMs = now
	r.Status = StatusPaused
}

// applySeek updates the authoritative position without changing status.
func applySeek(r *Room, positionMs int64, now int64) {
	r.PositionMs = positionMs
	r.LastUpdateMs = now
}

// applyBuffering marks a user buffering and transitions the room into
// Buffering, snapshotting position first. Re-entering Buffering while
// already Buffering is idempotent (the state doesn't change, but the
// buffering-user set still gains the sender).
func applyBuffering(r *Room, u UserID, now int64) {
	if r.Status == StatusWatching {
		snapshotPosition(r, now)
	}
	r.BufferingUsers[u] = struct{}{}
	r.Status = StatusBuffering
}

// applyPlay handles a Play message from u. Per spec §4.4: a Play is
// accepted while anyone is buffering; the sender is removed from
// buffering_users; the transition to Watching happens only once
// buffering_users is empty after that removal. From Paused (nobody
// buffering), Play transitions straight to Watching.
func applyPlay(r *Room, u UserID, positionMs int64, now int64) (transitioned bool) {
	delete(r.BufferingUsers, u)
	if len(r.BufferingUsers) > 0 {
		// Someone else is still buffering; stay put (still Buffering).
		r.PositionMs = positionMs
		r.LastUpdateMs = now
		return false
	}
	r.PositionMs = positionMs
	r.LastUpdateMs = now
	r.Status = StatusWatching
	return true
}

// applyReady records that u has signalled ready. It returns true iff this
// Ready completes the AllReady consensus: every currently-connected user id
// is now present in ReadyUsers. On consensus, ReadyUsers is cleared and the
// room transitions to Watching — the caller is responsible for broadcasting
// AllReady.
func applyReady(r *Room, u UserID, now int64) (allReady bool) {
	r.ReadyUsers[u] = struct{}{}
	connected := connectedUserIDs(r)
	if len(connected) == 0 {
		return false
	}
	for uid := range connected {
		if _, ok := r.ReadyUsers[uid]; !ok {
			return false
		}
	}
	r.ReadyUsers = set.New[UserID]()
	r.Status = StatusWatching
	r.LastUpdateMs = now
	return true
}

// reevaluateReadyOnDisconnect re-checks AllReady consensus after a
// disconnect, since the departing user may have been the last holdout
// (spec §8 boundary behaviour: "coordinator re-evaluates consensus after
// disconnect and may emit AllReady immediately").
func reevaluateReadyOnDisconnect(r *Room, now int64) (allReady bool) {
	if r.Status == StatusWatching || len(r.ReadyUsers) == 0 {
		return false
	}
	connected := connectedUserIDs(r)
	if len(connected) == 0 {
		return false
	}
	for uid := range connected {
		if _, ok := r.ReadyUsers[uid]; !ok {
			return false
		}
	}
	r.ReadyUsers = set.New[UserID]()
	r.Status = StatusWatching
	r.LastUpdateMs = now
	return true
}

// transitionToPausedOnDisconnect snapshots position and moves a
// Watching/Buffering room to Paused and clears buffering_users; the hub calls
// it on every disconnect (spec §4.2 Disconnect).
func transitionToPausedOnDisconnect(r *Room, now int64) (didTransition bool) {
	if r.Status != StatusWatching && r.Status != StatusBuffering {
		return false
	}
	snapshotPosition(r, now)
	r.Status = StatusPaused
	r.BufferingUsers = set.New[UserID]()
	return true
}

func isSynced(r *Room, u UserID) bool {
	return r.SyncedUsers[u]
}

func markSynced(r *Room, u UserID) {
	r.SyncedUsers[u] = true
}

func clearSynced(r *Room, u UserID) {
	delete(r.SyncedUsers, u)
}
