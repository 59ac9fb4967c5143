package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanJoinEveryone(t *testing.T) {
	r := newTestRoom(&fakeClock{now: 0}, 1)
	r.AccessMode = AccessEveryone
	assert.True(t, canJoin(r, 1))
	assert.True(t, canJoin(r, 99))
}

func TestCanJoinInviteOnly(t *testing.T) {
	r := newTestRoom(&fakeClock{now: 0}, 1)
	r.AccessMode = AccessInviteOnly
	assert.True(t, canJoin(r, 1)) // host
	assert.False(t, canJoin(r, 2))

	grantAccess(r, 2)
	assert.True(t, canJoin(r, 2))

	addParticipant(r, 3, "carl", "", 0)
	assert.True(t, canJoin(r, 3))
}

func TestCanJoinByUser(t *testing.T) {
	r := newTestRoom(&fakeClock{now: 0}, 1)
	r.AccessMode = AccessByUser
	assert.False(t, canJoin(r, 2))
	grantAccess(r, 2)
	assert.True(t, canJoin(r, 2))
	assert.False(t, canJoin(r, 3))
}

func TestVisibleToUserMatchesCanJoinRules(t *testing.T) {
	r := newTestRoom(&fakeClock{now: 0}, 1)
	r.AccessMode = AccessByUser
	assert.True(t, visibleToUser(r, 1))
	assert.False(t, visibleToUser(r, 2))
	grantAccess(r, 2)
	assert.True(t, visibleToUser(r, 2))
}
