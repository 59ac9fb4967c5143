package party

import "encoding/json"

// Message types, discriminated by the "type" field (spec §4.6 wire
// protocol table).
const (
	TypePlay         = "play"
	TypePause        = "pause"
	TypeSeek         = "seek"
	TypeSyncRequest  = "sync_request"
	TypeSyncResponse = "sync_response"
	TypeHeartbeat    = "heartbeat"
	TypeMediaChange  = "media_change"
	TypeNextEpisode  = "next_episode"
	TypeNavigate     = "navigate"
	TypeQueueAdd     = "queue_add"
	TypeQueueRemove  = "queue_remove"
	TypeQueueReorder = "queue_reorder"
	TypeQueueClear   = "queue_clear"
	TypeChat         = "chat"
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeBuffering    = "buffering"
	TypeReady        = "ready"
	TypeAllReady     = "all_ready"
	TypeSyncAck      = "sync_ack"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeRoomState    = "room_state"
	TypeKicked       = "kicked"
	TypeRoomClosed   = "room_closed"
	TypeError        = "error"
)

// inboundMessage is the shape of every client-to-server frame. Fields that
// don't apply to a given Type are left at their zero value; handlers.go
// only reads the fields relevant to msg.Type.
type inboundMessage struct {
	Type       string `json:"type"`
	PositionMs int64  `json:"position_ms"`
	MediaID    string `json:"media_id"`
	Title      string `json:"title,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Index      int    `json:"index,omitempty"`
	From       int    `json:"from,omitempty"`
	To         int    `json:"to,omitempty"`
	Message    string `json:"message,omitempty"`
}

func parseInbound(raw []byte) (*inboundMessage, error) {
	var m inboundMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// outbound message payloads. Each carries its own "type" discriminator field
// and is marshaled with mustMarshal.

type playPausePayload struct {
	Type       string `json:"type"`
	PositionMs int64  `json:"position_ms"`
	UserID     UserID `json:"user_id"`
}

type seekPayload struct {
	Type       string `json:"type"`
	PositionMs int64  `json:"position_ms"`
	UserID     UserID `json:"user_id"`
}

type syncResponsePayload struct {
	Type       string `json:"type"`
	PositionMs int64  `json:"position_ms"`
	IsPaused   bool   `json:"is_paused"`
	MediaID    string `json:"media_id"`
}

type heartbeatPayload struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"server_time"`
	Timestamp  int64  `json:"timestamp"`
	MediaID    string `json:"media_id"`
}

type mediaChangePayload struct {
	Type       string `json:"type"`
	MediaID    string `json:"media_id"`
	Title      string `json:"title,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type navigatePayload struct {
	Type    string `json:"type"`
	MediaID string `json:"media_id"`
	Route   string `json:"route"`
}

type chatPayload struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	UserID  UserID `json:"user_id"`
	Message string `json:"message"`
}

type membershipPayload struct {
	Type     string `json:"type"`
	UserID   UserID `json:"user_id"`
	Username string `json:"username,omitempty"`
	Thumb    string `json:"thumb,omitempty"`
}

type bufferingPayload struct {
	Type   string `json:"type"`
	UserID UserID `json:"user_id"`
}

type roomStatePayload struct {
	Type string   `json:"type"`
	Room RoomView `json:"room"`
}

type kickedPayload struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type simplePayload struct {
	Type string `json:"type"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Every payload type above is composed solely of marshalable
		// primitives and RoomView; a marshal failure here means a
		// programming error, not a runtime condition to recover from.
		panic(err)
	}
	return b
}
