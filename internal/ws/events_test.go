package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEveryInboundKindHasAHandler(t *testing.T) {
	s := NewServer(NewHub(), nil, nil, nil, nil, Options{})
	for k := InboundKind(0); k < numInboundKinds; k++ {
		assert.NotNil(t, s.handlers[k], "missing handler for %s", k)
		assert.NotEmpty(t, inboundNames[k])

		parsed, ok := ParseInboundKind(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, parsed)
	}
}

func TestParseInboundKindRejectsUnknown(t *testing.T) {
	_, ok := ParseInboundKind("message")
	assert.False(t, ok)
	assert.Equal(t, "unknown", numInboundKinds.String())
}

func TestRoomID(t *testing.T) {
	assert.Equal(t, "user:1", UserRoom(1).String())
	assert.Equal(t, "chat:2", ChatRoom(2).String())
	assert.NotEqual(t, UserRoom(3), ChatRoom(3))
	assert.False(t, RoomID{}.Valid())
	assert.False(t, ChatRoom(0).Valid())
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{SendBuffer: 3}.withDefaults()
	assert.Equal(t, 3, opts.SendBuffer)
	assert.Equal(t, DefaultOptions().PingInterval, opts.PingInterval)
}

func TestBudgetedKinds(t *testing.T) {
	for _, k := range []InboundKind{KindWentOnline, KindWentOffline, KindJoinChat} {
		assert.False(t, k.Budgeted(), k.String())
	}
	for _, k := range []InboundKind{KindCheckOnlineStatus, KindLeaveChat, KindTyping, KindStopTyping} {
		assert.True(t, k.Budgeted(), k.String())
	}
}
