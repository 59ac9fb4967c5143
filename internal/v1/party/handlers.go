package party

import (
	"context"

	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/logging"
	"github.com/Drew-Chase/playarr/internal/v1/metrics"
)

// dispatch is the wire-protocol router of spec §4.6: it parses one inbound
// frame from c and applies it to r under the room lock, then fans out the
// result. State-changing message types (play/pause/seek/media_change/
// next_episode/buffering) are gated on the sender already being marked
// synced in r.SyncedUsers — an un-synced sender's state-changing messages
// are silently dropped, per spec §4.6's synced-flag gate, rather than
// erroring: a client that hasn't yet sent sync_ack for its initial
// sync is expected to send some of these transiently
// while it catches up.
func (h *Hub) dispatch(ctx context.Context, r *Room, c *Client, raw []byte) {
	msg, err := parseInbound(raw)
	if err != nil {
		c.trySend(mustMarshal(errorPayload{Type: TypeError, Message: "malformed message"}))
		return
	}

	metrics.EventsTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case TypePlay:
		h.handlePlay(r, c, msg)
	case TypePause:
		h.handlePause(r, c, msg)
	case TypeSeek:
		h.handleSeek(r, c, msg)
	case TypeMediaChange:
		h.handleMediaChange(r, c, msg)
	case TypeNextEpisode:
		h.handleNextEpisode(ctx, r, c)
	case TypeNavigate:
		h.handleNavigate(r, c, msg)
	case TypeBuffering:
		h.handleBuffering(r, c)
	case TypeReady:
		h.handleReady(r, c)
	case TypeQueueAdd:
		h.handleQueueAdd(r, c, msg)
	case TypeQueueRemove:
		h.handleQueueRemove(r, c, msg)
	case TypeQueueReorder:
		h.handleQueueReorder(r, c, msg)
	case TypeQueueClear:
		h.handleQueueClear(r)
	case TypeSyncRequest:
		h.handleSyncRequest(r, c)
	case TypeSyncAck:
		h.handleSyncAck(r, c)
	case TypeChat:
		h.handleChat(r, c, msg)
	case TypePing:
		c.trySend(mustMarshal(simplePayload{Type: TypePong}))
	default:
		logging.Warn(ctx, "unrecognized message type", zap.String("type", msg.Type), zap.String("room_id", r.ID.String()))
	}
}

// isSyncedGate reports whether c's sender may issue state-changing
// messages. The host is always permitted (it drives playback before any
// other participant has synced); everyone else must have completed the
// sync_request/sync_ack handshake first.
func isSyncedGate(r *Room, u UserID) bool {
	return isHost(r, u) || isSynced(r, u)
}

func (h *Hub) handlePlay(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	if !isSyncedGate(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	now := h.clock.NowMs()
	applyPlay(r, c.UserID, msg.PositionMs, now)
	position := r.PositionMs
	r.mu.Unlock()

	h.broadcastExcept(r, mustMarshal(playPausePayload{Type: TypePlay, PositionMs: position, UserID: c.UserID}), c.UserID)
}

func (h *Hub) handlePause(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	if !isSyncedGate(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	now := h.clock.NowMs()
	applyPause(r, msg.PositionMs, now)
	position := r.PositionMs
	r.mu.Unlock()

	h.broadcastExcept(r, mustMarshal(playPausePayload{Type: TypePause, PositionMs: position, UserID: c.UserID}), c.UserID)
}

func (h *Hub) handleSeek(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	if !isSyncedGate(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	now := h.clock.NowMs()
	applySeek(r, msg.PositionMs, now)
	position := r.PositionMs
	r.mu.Unlock()

	h.broadcastExcept(r, mustMarshal(seekPayload{Type: TypeSeek, PositionMs: position, UserID: c.UserID}), c.UserID)
}

func (h *Hub) handleMediaChange(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	if !isSyncedGate(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	now := h.clock.NowMs()
	changed := applyMediaChange(r, msg.MediaID, msg.Title, msg.DurationMs, now)
	if !changed {
		r.mu.Unlock()
		return
	}
	payload := mediaChangePayload{Type: TypeMediaChange, MediaID: r.MediaID, Title: r.MediaTitle, DurationMs: r.DurationMs}
	r.mu.Unlock()

	h.broadcastExcept(r, mustMarshal(payload), c.UserID)
}

// handleNextEpisode implements the host-only advance-from-queue operation:
// it pops the head of the episode queue and applies it as a media_change,
// same as handleMediaChange but sourced from the queue instead of the
// client (spec §4.3: queue advancement is host-gated even though direct
// queue edits are not, per SPEC_FULL.md §9 Open Question 3).
func (h *Hub) handleNextEpisode(ctx context.Context, r *Room, c *Client) {
	r.mu.Lock()
	if !isHost(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	next, ok := nextInQueue(r)
	if !ok {
		r.mu.Unlock()
		return
	}
	now := h.clock.NowMs()
	applyMediaChange(r, next, "", 0, now)
	payload := mediaChangePayload{Type: TypeMediaChange, MediaID: r.MediaID, Title: r.MediaTitle, DurationMs: r.DurationMs}
	r.mu.Unlock()

	logging.Info(ctx, "advanced to next queued episode", zap.String("room_id", r.ID.String()), zap.String("media_id", next))
	h.broadcast(r, mustMarshal(payload))
}

func (h *Hub) handleNavigate(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	if !isHost(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	mediaID := r.MediaID
	r.mu.Unlock()
	h.broadcastExcept(r, mustMarshal(navigatePayload{Type: TypeNavigate, MediaID: mediaID, Route: msg.Message}), c.UserID)
}

func (h *Hub) handleBuffering(r *Room, c *Client) {
	r.mu.Lock()
	if !isSyncedGate(r, c.UserID) {
		r.mu.Unlock()
		return
	}
	now := h.clock.NowMs()
	applyBuffering(r, c.UserID, now)
	r.mu.Unlock()

	h.broadcastExcept(r, mustMarshal(bufferingPayload{Type: TypeBuffering, UserID: c.UserID}), c.UserID)
}

func (h *Hub) handleReady(r *Room, c *Client) {
	r.mu.Lock()
	now := h.clock.NowMs()
	allReady := applyReady(r, c.UserID, now)
	r.mu.Unlock()

	if allReady {
		h.broadcast(r, mustMarshal(simplePayload{Type: TypeAllReady}))
	}
}

// Queue operations are deliberately not host-gated, per
// original_source/src-actix/watch_party/queue.rs and SPEC_FULL.md §9 Open
// Question 3: any participant may propose additions/reorders, matching the
// collaborative-queue behaviour of the original.

func (h *Hub) handleQueueAdd(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	queueAdd(r, msg.MediaID)
	r.mu.Unlock()
	h.broadcastRoomState(r)
}

func (h *Hub) handleQueueRemove(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	ok := queueRemove(r, msg.Index)
	r.mu.Unlock()
	if ok {
		h.broadcastRoomState(r)
	}
}

func (h *Hub) handleQueueReorder(r *Room, c *Client, msg *inboundMessage) {
	r.mu.Lock()
	ok := queueReorder(r, msg.From, msg.To)
	r.mu.Unlock()
	if ok {
		h.broadcastRoomState(r)
	}
}

func (h *Hub) handleQueueClear(r *Room) {
	r.mu.Lock()
	queueClear(r)
	r.mu.Unlock()
	h.broadcastRoomState(r)
}

// broadcastRoomState re-sends the full room snapshot to everyone — used
// after queue mutations, where every field of RoomView.EpisodeQueue is
// what changed and a bespoke delta payload isn't worth the complexity.
func (h *Hub) broadcastRoomState(r *Room) {
	r.mu.Lock()
	snapshot := view(r, h.clock.NowMs())
	r.mu.Unlock()
	h.broadcast(r, mustMarshal(roomStatePayload{Type: TypeRoomState, Room: snapshot}))
}

// handleSyncRequest answers with the authoritative playback position —
// only the host's connection is asked to resolve this in richer upstream
// flows, but the coordinator itself always has an answer from its own
// state (spec §4.6).
func (h *Hub) handleSyncRequest(r *Room, c *Client) {
	r.mu.Lock()
	now := h.clock.NowMs()
	position := computePositionMs(r, now)
	payload := syncResponsePayload{
		Type:       TypeSyncResponse,
		PositionMs: position,
		IsPaused:   r.Status != StatusWatching,
		MediaID:    r.MediaID,
	}
	r.mu.Unlock()

	c.trySend(mustMarshal(payload))
}

// handleSyncAck marks the sender synced, clearing the gate on their future
// state-changing messages.
func (h *Hub) handleSyncAck(r *Room, c *Client) {
	r.mu.Lock()
	markSynced(r, c.UserID)
	r.mu.Unlock()
}

func (h *Hub) handleChat(r *Room, c *Client, msg *inboundMessage) {
	h.broadcastExcept(r, mustMarshal(chatPayload{
		Type:    TypeChat,
		From:    c.Username,
		UserID:  c.UserID,
		Message: msg.Message,
	}), c.UserID)
}
