package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFields(t *testing.T, msg Message) map[string]any {
	t.Helper()
	raw, err := json.Marshal(Outbound{Event: "e", Body: msg})
	require.NoError(t, err)

	var frame struct {
		Body map[string]any `json:"body"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame.Body
}

func TestMessageShapePerChannel(t *testing.T) {
	r := New(16, nil)
	r.Connect("A")

	direct := decodeFields(t, r.SendDirect("A", "", "no receiver", ""))
	assert.Contains(t, direct, "receiver")
	assert.Equal(t, "", direct["receiver"])
	assert.NotContains(t, direct, "roomName")

	room := decodeFields(t, r.ChatInRoom("A", "", "no room", ""))
	assert.Contains(t, room, "roomName")
	assert.Equal(t, "", room["roomName"])
	assert.NotContains(t, room, "receiver")

	broadcast := decodeFields(t, r.SendBroadcast("A", "all", ""))
	assert.NotContains(t, broadcast, "receiver")
	assert.NotContains(t, broadcast, "roomName")
	for _, k := range []string{"id", "sender", "message", "timestamp"} {
		assert.Contains(t, broadcast, k)
	}
	assert.Equal(t, "all", broadcast["message"])
}
