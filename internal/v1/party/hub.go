package party

import (
	"context"

	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/logging"
	"github.com/Drew-Chase/playarr/internal/v1/metrics"
)

// Hub owns the Store and is the sole place fan-out primitives (broadcast,
// broadcastExcept, sendToUser) and connection lifecycle (join, disconnect,
// kick, close) live — spec §4.1/§4.6. Exactly one Hub exists per process.
type Hub struct {
	Store *Store
	clock Clock
}

// NewHub constructs a Hub backed by a fresh Store.
func NewHub(clock Clock) *Hub {
	return &Hub{
		Store: NewStore(clock),
		clock: clock,
	}
}

// broadcast sends payload to every currently-connected session in r. The
// recipient list is cloned under the room lock and the lock is dropped
// before any I/O, per spec §5's "clone then drop the lock" fan-out rule.
func (h *Hub) broadcast(r *Room, payload []byte) {
	r.mu.Lock()
	recipients := make([]*Client, 0, len(r.connections))
	for _, c := range r.connections {
		recipients = append(recipients, c)
	}
	r.mu.Unlock()

	for _, c := range recipients {
		if !c.trySend(payload) {
			h.dropDeadConnection(r, c)
		}
	}
}

// broadcastExcept is broadcast but skips excludeUser — used for
// state-changing events where the sender has already applied the change
// locally (spec §4.6 Fan-out primitives).
func (h *Hub) broadcastExcept(r *Room, payload []byte, excludeUser UserID) {
	r.mu.Lock()
	recipients := make([]*Client, 0, len(r.connections))
	for uid, c := range r.connections {
		if uid == excludeUser {
			continue
		}
		recipients = append(recipients, c)
	}
	r.mu.Unlock()

	for _, c := range recipients {
		if !c.trySend(payload) {
			h.dropDeadConnection(r, c)
		}
	}
}

// sendToUser delivers payload to a single connected user, if any.
func (h *Hub) sendToUser(r *Room, u UserID, payload []byte) {
	r.mu.Lock()
	c, ok := r.connections[u]
	r.mu.Unlock()
	if !ok {
		return
	}
	if !c.trySend(payload) {
		h.dropDeadConnection(r, c)
	}
}

// dropDeadConnection treats a send failure on an individual session as a
// disconnect for that session only (spec §7: "never fail the broadcast as
// a whole").
func (h *Hub) dropDeadConnection(r *Room, c *Client) {
	h.handleDisconnect(context.Background(), r, c)
}

// JoinParams collects what HandleConnection needs beyond the access check,
// which httpapi has already performed before calling this.
type JoinParams struct {
	Room     *Room
	UserID   UserID
	Username string
	Thumb    string
	Conn     wsConnection
}

// HandleConnection implements spec §4.6 steps 4-5: register the session,
// auto-sync the host, send room_state to the joiner, broadcast join to
// everyone else, then run the connection until it closes.
func (h *Hub) HandleConnection(ctx context.Context, p JoinParams) {
	r := p.Room
	c := newClient(r.ID, p.UserID, p.Username, p.Conn)

	r.mu.Lock()
	isNew := addParticipant(r, p.UserID, p.Username, p.Thumb, h.clock.NowMs())
	r.connections[p.UserID] = c
	if isHost(r, p.UserID) {
		markSynced(r, p.UserID)
	}
	snapshot := view(r, h.clock.NowMs())
	r.mu.Unlock()

	metrics.ActiveWebSocketConnections.Inc()
	metrics.ActiveRooms.Set(float64(h.Store.Count()))

	go c.writePump()

	c.trySend(mustMarshal(roomStatePayload{Type: TypeRoomState, Room: snapshot}))

	if isNew {
		h.broadcastExcept(r, mustMarshal(membershipPayload{
			Type: TypeJoin, UserID: p.UserID, Username: p.Username, Thumb: p.Thumb,
		}), p.UserID)
	}

	logging.Info(ctx, "participant connected", zap.String("room_id", r.ID.String()), zap.Int64("user_id", int64(p.UserID)))

	c.readPump(func(cl *Client, raw []byte) {
		h.dispatch(ctx, r, cl, raw)
	})

	h.handleDisconnect(ctx, r, c)
}

// handleDisconnect implements spec §4.2 Disconnect. It is idempotent: a
// connection already removed (e.g. by kick) is a no-op on the second call.
func (h *Hub) handleDisconnect(ctx context.Context, r *Room, c *Client) {
	c.close()

	r.mu.Lock()
	existing, stillRegistered := r.connections[c.UserID]
	if !stillRegistered || existing != c {
		r.mu.Unlock()
		return
	}
	delete(r.connections, c.UserID)
	clearSynced(r, c.UserID)
	delete(r.ReadyUsers, c.UserID)
	delete(r.BufferingUsers, c.UserID)

	now := h.clock.NowMs()
	pausedTransition := transitionToPausedOnDisconnect(r, now)
	pausedPosition := r.PositionMs
	allReady := false
	if !pausedTransition {
		allReady = reevaluateReadyOnDisconnect(r, now)
	}
	empty := removeParticipant(r, c.UserID)
	r.mu.Unlock()

	metrics.ActiveWebSocketConnections.Dec()

	if pausedTransition {
		h.broadcast(r, mustMarshal(playPausePayload{Type: TypePause, PositionMs: pausedPosition, UserID: c.UserID}))
	}
	if allReady {
		h.broadcast(r, mustMarshal(simplePayload{Type: TypeAllReady}))
	}
	h.broadcast(r, mustMarshal(membershipPayload{Type: TypeLeave, UserID: c.UserID, Username: c.Username}))

	if empty {
		h.Store.RemoveRoom(r.ID)
		metrics.ActiveRooms.Set(float64(h.Store.Count()))
	}

	logging.Info(ctx, "participant disconnected", zap.String("room_id", r.ID.String()), zap.Int64("user_id", int64(c.UserID)))
}

// CloseRoom implements spec §4.2 Close: broadcast room_closed, close every
// session, and remove all room state including the invite-code index
// entry.
func (h *Hub) CloseRoom(r *Room) {
	h.broadcast(r, mustMarshal(simplePayload{Type: TypeRoomClosed}))

	r.mu.Lock()
	conns := make([]*Client, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	h.Store.RemoveRoom(r.ID)
	metrics.ActiveRooms.Set(float64(h.Store.Count()))
}

// KickUser implements spec §4.2 Kick: tell the target they were kicked,
// close their session, remove them as a participant, and broadcast Leave.
func (h *Hub) KickUser(ctx context.Context, r *Room, target UserID, reason string) bool {
	r.mu.Lock()
	c, ok := r.connections[target]
	r.mu.Unlock()
	if !ok {
		return false
	}

	c.trySend(mustMarshal(kickedPayload{Type: TypeKicked, Reason: reason}))
	h.handleDisconnect(ctx, r, c)
	return true
}
