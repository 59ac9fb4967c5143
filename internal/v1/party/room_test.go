package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now int64 }

func (f *fakeClock) NowMs() int64 { return f.now }

func newTestRoom(clock Clock, host UserID) *Room {
	return newRoom(clock, NewRoomID(), host, "hostname", "movie night", AccessEveryone, nil)
}

func TestNewRoomStartsIdle(t *testing.T) {
	clock := &fakeClock{now: 1000}
	r := newTestRoom(clock, 1)
	assert.Equal(t, StatusIdle, r.Status)
	assert.Equal(t, int64(1000), r.CreatedAtMs)
	assert.Empty(t, r.Participants)
}

func TestComputePositionMsAdvancesWhileWatching(t *testing.T) {
	clock := &fakeClock{now: 1000}
	r := newTestRoom(clock, 1)
	r.Status = StatusWatching
	r.PositionMs = 5000
	r.LastUpdateMs = 1000

	got := computePositionMs(r, 1000+2500)
	assert.Equal(t, int64(7500), got)
}

func TestComputePositionMsFrozenWhenNotWatching(t *testing.T) {
	clock := &fakeClock{now: 1000}
	r := newTestRoom(clock, 1)
	r.Status = StatusPaused
	r.PositionMs = 5000
	r.LastUpdateMs = 1000

	got := computePositionMs(r, 1000+9000)
	assert.Equal(t, int64(5000), got)
}

func TestSnapshotPositionFreezesAndAdvancesLastUpdate(t *testing.T) {
	clock := &fakeClock{now: 0}
	r := newTestRoom(clock, 1)
	r.Status = StatusWatching
	r.PositionMs = 0
	r.LastUpdateMs = 0

	snapshotPosition(r, 3000)
	assert.Equal(t, int64(3000), r.PositionMs)
	assert.Equal(t, int64(3000), r.LastUpdateMs)
}

func TestAddParticipantNewVsReconnect(t *testing.T) {
	clock := &fakeClock{now: 0}
	r := newTestRoom(clock, 1)

	isNew := addParticipant(r, 2, "bob", "", 10)
	assert.True(t, isNew)
	require.Len(t, r.Participants, 1)

	isNew = addParticipant(r, 2, "bob", "", 20)
	assert.False(t, isNew)
	assert.Equal(t, int64(20), r.Participants[0].JoinedAt)
}

func TestRemoveParticipantReportsEmpty(t *testing.T) {
	clock := &fakeClock{now: 0}
	r := newTestRoom(clock, 1)
	addParticipant(r, 1, "host", "", 0)
	addParticipant(r, 2, "bob", "", 0)

	empty := removeParticipant(r, 2)
	assert.False(t, empty)

	empty = removeParticipant(r, 1)
	assert.True(t, empty)
}

func TestQueueOperations(t *testing.T) {
	clock := &fakeClock{now: 0}
	r := newTestRoom(clock, 1)

	queueAdd(r, "ep1")
	queueAdd(r, "ep2")
	queueAdd(r, "ep3")
	require.Equal(t, []string{"ep1", "ep2", "ep3"}, r.EpisodeQueue)

	ok := queueReorder(r, 0, 2)
	require.True(t, ok)
	assert.Equal(t, []string{"ep2", "ep3", "ep1"}, r.EpisodeQueue)

	ok = queueRemove(r, 1)
	require.True(t, ok)
	assert.Equal(t, []string{"ep2", "ep1"}, r.EpisodeQueue)

	assert.False(t, queueRemove(r, 99))
	assert.False(t, queueReorder(r, 0, 99))

	queueClear(r)
	assert.Empty(t, r.EpisodeQueue)
}

func TestNextInQueue(t *testing.T) {
	clock := &fakeClock{now: 0}
	r := newTestRoom(clock, 1)

	_, ok := nextInQueue(r)
	assert.False(t, ok)

	queueAdd(r, "ep1")
	queueAdd(r, "ep2")
	next, ok := nextInQueue(r)
	require.True(t, ok)
	assert.Equal(t, "ep1", next)
	assert.Equal(t, []string{"ep2"}, r.EpisodeQueue)
}

func TestViewCopiesIDAndParticipants(t *testing.T) {
	clock := &fakeClock{now: 0}
	r := newTestRoom(clock, 1)
	v := view(r, 0)
	assert.Equal(t, r.ID, v.ID)
	assert.Equal(t, r.Participants, v.Participants)
}
