package party

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundPlay(t *testing.T) {
	raw := []byte(`{"type":"play","position_ms":1500}`)
	msg, err := parseInbound(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePlay, msg.Type)
	assert.Equal(t, int64(1500), msg.PositionMs)
}

func TestParseInboundMalformedReturnsError(t *testing.T) {
	_, err := parseInbound([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseInboundQueueReorderFields(t *testing.T) {
	raw := []byte(`{"type":"queue_reorder","from":0,"to":2}`)
	msg, err := parseInbound(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, msg.From)
	assert.Equal(t, 2, msg.To)
}

func TestMustMarshalRoundTrips(t *testing.T) {
	payload := heartbeatPayload{Type: TypeHeartbeat, ServerTime: 10, Timestamp: 20, MediaID: "ep1"}
	raw := mustMarshal(payload)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeHeartbeat, decoded["type"])
	assert.Equal(t, float64(20), decoded["timestamp"])
}
