package party

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrRoomNotFound is returned by Store lookups when no room matches.
var ErrRoomNotFound = errors.New("party: room not found")

// ErrInviteCodeExhausted is returned if invite-code generation collides
// past a small retry bound (spec §9: "must still be checked and retried").
var ErrInviteCodeExhausted = errors.New("party: could not allocate a unique invite code")

const maxInviteCodeAttempts = 8

// Store is the Room Store of spec §4.1: a concurrent map of room id to room
// record, an invite-code index, and (via each Room's own connections map) a
// connection registry. The top-level mu guards the two maps; each Room's
// own mu guards its fields. Lock ordering, per spec §5, is rooms ->
// connections -> synced_users -> invite_codes. Lookups take the top-level
// lock only briefly, to find the room, and release it before the room's own
// lock is taken; CreateRoom and removeIfEmpty take a room's lock while
// holding the top-level lock, always in that order.
type Store struct {
	clock Clock

	mu           sync.RWMutex
	rooms        map[uuid.UUID]*Room
	byInviteCode map[string]uuid.UUID
}

// NewStore constructs an empty Room Store.
func NewStore(clock Clock) *Store {
	return &Store{
		clock:        clock,
		rooms:        make(map[uuid.UUID]*Room),
		byInviteCode: make(map[string]uuid.UUID),
	}
}

// CreateRoomParams collects the fields a caller supplies when creating a
// room (spec §4.2 Create).
type CreateRoomParams struct {
	HostUserID     UserID
	HostUsername   string
	Name           string
	AccessMode     AccessMode
	AllowedUserIDs []UserID
}

// CreateRoom registers a new room, adds the host as its first participant,
// and — for InviteOnly rooms — allocates a globally-unique invite code.
func (s *Store) CreateRoom(p CreateRoomParams) (*Room, error) {
	id := NewRoomID()
	r := newRoom(s.clock, id, p.HostUserID, p.HostUsername, p.Name, p.AccessMode, p.AllowedUserIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.AccessMode == AccessInviteOnly {
		code, err := s.allocateInviteCodeLocked()
		if err != nil {
			return nil, err
		}
		r.InviteCode = code
		s.byInviteCode[code] = id
	}

	r.mu.Lock()
	addParticipant(r, p.HostUserID, p.HostUsername, "", r.CreatedAtMs)
	r.mu.Unlock()

	s.rooms[id] = r
	return r, nil
}

// allocateInviteCodeLocked must be called with s.mu held for writing.
func (s *Store) allocateInviteCodeLocked() (string, error) {
	for i := 0; i < maxInviteCodeAttempts; i++ {
		code, err := NewInviteCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.byInviteCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrInviteCodeExhausted
}

// View renders r as its JSON-serializable snapshot, stamped with the
// store's clock. httpapi uses this instead of serializing *Room directly
// so the REST surface and the room_state WebSocket payload always agree
// on shape.
func (s *Store) View(r *Room) RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return view(r, s.clock.NowMs())
}

// Get returns the room for id, or ErrRoomNotFound.
func (s *Store) Get(id uuid.UUID) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// GetByInviteCode resolves an invite code to its room.
func (s *Store) GetByInviteCode(code string) (*Room, error) {
	s.mu.RLock()
	id, ok := s.byInviteCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.Get(id)
}

// RedeemInviteCode resolves an invite code and grants u standing access to
// the room, implementing the invite-code join path of spec §4.3 (an
// InviteOnly room admits "anyone already granted access" — redemption is
// how that grant happens).
func (s *Store) RedeemInviteCode(code string, u UserID) (*Room, error) {
	r, err := s.GetByInviteCode(code)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	grantAccess(r, u)
	r.mu.Unlock()
	return r, nil
}

// ListForUser returns the visibility-filtered snapshot of every room u may
// see (spec §4.3 list-for-user).
func (s *Store) ListForUser(u UserID) []RoomView {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	now := s.clock.NowMs()
	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if visibleToUser(r, u) {
			out = append(out, view(r, now))
		}
		r.mu.Unlock()
	}
	return out
}

// ListHostedBy returns every room hosted by u, regardless of visibility
// rules (since the host always sees their own rooms). Backs the
// GET /rooms/mine convenience route (SPEC_FULL.md §9).
func (s *Store) ListHostedBy(u UserID) []RoomView {
	s.mu.RLock()
	rooms := make([]*Room, 0)
	for _, r := range s.rooms {
		if r.HostUserID == u {
			rooms = append(rooms, r)
		}
	}
	s.mu.RUnlock()

	now := s.clock.NowMs()
	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		out = append(out, view(r, now))
		r.mu.Unlock()
	}
	return out
}

// removeRoomLocked deletes the room and its invite-code entry. Must be
// called with s.mu held for writing. Implements invariant 4/5: empty rooms
// (and their invite codes) are removed atomically with respect to other
// Store operations.
func (s *Store) removeRoomLocked(r *Room) {
	delete(s.rooms, r.ID)
	if r.InviteCode != "" {
		delete(s.byInviteCode, r.InviteCode)
	}
}

// RemoveRoom deletes a room unconditionally (host Close, spec §4.2).
func (s *Store) RemoveRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return
	}
	s.removeRoomLocked(r)
}

// removeIfEmpty deletes the room from the store iff it currently has zero
// participants. It checks under the room's own lock, then takes the store
// lock and re-checks before updating the index. The hub's disconnect path
// does not call it; it removes empty rooms with RemoveRoom.
func (s *Store) removeIfEmpty(r *Room) {
	r.mu.Lock()
	empty := len(r.Participants) == 0
	r.mu.Unlock()
	if !empty {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the store lock: a concurrent join could have landed
	// between the two locks above.
	r.mu.Lock()
	stillEmpty := len(r.Participants) == 0
	r.mu.Unlock()
	if stillEmpty {
		s.removeRoomLocked(r)
	}
}

// AllRooms returns a snapshot slice of every room, used only by the
// heartbeat driver's iter-all (spec §4.1).
func (s *Store) AllRooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// Clock exposes the store's clock so callers (handlers, heartbeat) stamp
// events consistently with room state.
func (s *Store) Clock() Clock { return s.clock }

// Count returns the number of currently active rooms, used for the
// rooms_active gauge.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
