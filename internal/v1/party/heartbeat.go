package party

import (
	"context"
	"time"

	"github.com/Drew-Chase/playarr/internal/v1/metrics"
)

// heartbeatInterval is the server-authoritative position broadcast period
// of spec §4.5.
const heartbeatInterval = 500 * time.Millisecond

// RunHeartbeat drives the periodic position broadcast until ctx is
// cancelled. One goroutine runs this for the lifetime of the process
// (spec §4.5: "a single driver iterates every room"), so it never holds a
// room lock across the iteration — each room is locked only long enough to
// snapshot its own position.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tickHeartbeat()
		}
	}
}

// tickHeartbeat snapshots and broadcasts position for every room currently
// Watching with at least one connection. Idle/Paused/Buffering rooms are
// skipped — there is nothing drifting to correct for those states (spec
// §4.5 "skip rooms with no connections or not Watching").
func (h *Hub) tickHeartbeat() {
	metrics.HeartbeatTicks.Inc()

	now := h.clock.NowMs()
	for _, r := range h.Store.AllRooms() {
		r.mu.Lock()
		if r.Status != StatusWatching || len(r.connections) == 0 {
			r.mu.Unlock()
			continue
		}
		snapshotPosition(r, now)
		payload := heartbeatPayload{
			Type:       TypeHeartbeat,
			ServerTime: r.PositionMs / 1000,
			Timestamp:  now,
			MediaID:    r.MediaID,
		}
		r.mu.Unlock()

		h.broadcast(r, mustMarshal(payload))
	}
}
