package party

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickHeartbeatSkipsNonWatchingRooms(t *testing.T) {
	clock := &fakeClock{now: 1000}
	h := NewHub(clock)
	r, err := h.Store.CreateRoom(CreateRoomParams{HostUserID: 1, HostUsername: "host", Name: "room", AccessMode: AccessEveryone})
	require.NoError(t, err)
	r.connections[1] = &Client{}

	h.tickHeartbeat()
	assert.Equal(t, StatusIdle, r.Status)
}

func TestTickHeartbeatSkipsRoomsWithNoConnections(t *testing.T) {
	clock := &fakeClock{now: 1000}
	h := NewHub(clock)
	r, err := h.Store.CreateRoom(CreateRoomParams{HostUserID: 1, HostUsername: "host", Name: "room", AccessMode: AccessEveryone})
	require.NoError(t, err)
	r.Status = StatusWatching
	r.PositionMs = 0
	r.LastUpdateMs = 0

	h.tickHeartbeat()
	assert.Equal(t, int64(0), r.PositionMs)
}

func TestTickHeartbeatBroadcastsToWatchingRoom(t *testing.T) {
	clock := &fakeClock{now: 5000}
	h := NewHub(clock)
	r, err := h.Store.CreateRoom(CreateRoomParams{HostUserID: 1, HostUsername: "host", Name: "room", AccessMode: AccessEveryone})
	require.NoError(t, err)
	r.Status = StatusWatching
	r.PositionMs = 1000
	r.LastUpdateMs = 0
	r.MediaID = "ep1"

	conn := newFakeConn()
	r.connections[1] = newClient(r.ID, 1, "host", conn)
	go r.connections[1].writePump()
	defer r.connections[1].close()

	h.tickHeartbeat()

	msgs := waitForMessageCount(t, conn, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0], &decoded))
	assert.Equal(t, TypeHeartbeat, decoded["type"])
	assert.Equal(t, float64(6), decoded["server_time"])
	assert.Equal(t, float64(5000), decoded["timestamp"])
	assert.Equal(t, int64(6000), r.PositionMs)
}

func TestRunHeartbeatStopsOnContextCancel(t *testing.T) {
	h := NewHub(&fakeClock{now: 0})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.RunHeartbeat(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunHeartbeat did not return after context cancellation")
	}
}
