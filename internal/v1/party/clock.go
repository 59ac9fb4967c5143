package party

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time so tests can control it without sleeping.
// Production code uses realClock; tests substitute a fakeClock.
type Clock interface {
	NowMs() int64
}

type realClock struct{}

func (realClock) NowMs() int64 {
	return time.Now().UnixMilli()
}

// SystemClock is the production Clock implementation.
var SystemClock Clock = realClock{}

// NewRoomID generates a fresh UUIDv4 room identifier.
func NewRoomID() uuid.UUID {
	return uuid.New()
}

// NewSessionID generates a fresh UUIDv4.
func NewSessionID() uuid.UUID {
	return uuid.New()
}

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const inviteCodeLength = 8

// NewInviteCode draws an 8-character uppercase alphanumeric code from
// crypto/rand. Collisions are handled by the caller (Store.CreateRoom)
// via retry, not by this function.
func NewInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, inviteCodeLength)
	for i, b := range buf {
		out[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(out), nil
}
