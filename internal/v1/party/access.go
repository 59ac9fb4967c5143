package party

// CanJoin is the exported, lock-safe entry point httpapi uses before
// upgrading a WebSocket connection — it takes the room lock itself so
// callers outside the package never need direct access to Room.mu.
func CanJoin(r *Room, u UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return canJoin(r, u)
}

// canJoin implements spec §4.3 Access Control: the host may always join;
// Everyone mode admits any authenticated user; InviteOnly admits existing
// participants and anyone already granted access; ByUser admits only users
// explicitly listed.
func canJoin(r *Room, u UserID) bool {
	if isHost(r, u) {
		return true
	}
	switch r.AccessMode {
	case AccessEveryone:
		return true
	case AccessInviteOnly:
		if _, ok := r.AllowedUserIDs[u]; ok {
			return true
		}
		for _, p := range r.Participants {
			if p.UserID == u {
				return true
			}
		}
		return false
	case AccessByUser:
		_, ok := r.AllowedUserIDs[u]
		return ok
	default:
		return false
	}
}

// grantAccess adds u to the allowed set, used by invite-code redemption.
func grantAccess(r *Room, u UserID) {
	r.AllowedUserIDs[u] = struct{}{}
}

// visibleToUser implements the list-for-user visibility rule of §4.3: a
// user sees a room iff they are the host, the room is Everyone, the room is
// InviteOnly and they are a participant or allowed, or the room is ByUser
// and they are allowed.
func visibleToUser(r *Room, u UserID) bool {
	if isHost(r, u) {
		return true
	}
	switch r.AccessMode {
	case AccessEveryone:
		return true
	case AccessInviteOnly:
		if _, ok := r.AllowedUserIDs[u]; ok {
			return true
		}
		for _, p := range r.Participants {
			if p.UserID == u {
				return true
			}
		}
		return false
	case AccessByUser:
		_, ok := r.AllowedUserIDs[u]
		return ok
	default:
		return false
	}
}
