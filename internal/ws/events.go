package ws

import "encoding/json"

// Event is an outbound event name.
type Event string

const (
	EventConnected            Event = "connected"
	EventSocketError          Event = "socketError"
	EventUserOnline           Event = "userOnline"
	EventUserOffline          Event = "userOffline"
	EventOnlineStatusResponse Event = "onlineStatusResponse"
	EventTyping               Event = "typing"
	EventStopTyping           Event = "stopTyping"
	EventNewMessage           Event = "new-message-received"
	EventMessageDelivered     Event = "message-delivered"
	EventMessageSeen          Event = "message-seen"
	EventReaction             Event = "reaction-received"
	EventMessageDeleted       Event = "chat-message-delete"
	EventNewChat              Event = "new-chat"
	EventNewGroupName         Event = "newGroupName"
	EventLeaveChat            Event = "leaveChat"
)

// InboundKind enumerates the events a client may send.
type InboundKind int

const (
	KindWentOnline InboundKind = iota
	KindWentOffline
	KindCheckOnlineStatus
	KindJoinChat
	KindLeaveChat
	KindTyping
	KindStopTyping

	numInboundKinds
)

var inboundNames = [numInboundKinds]string{
	KindWentOnline:        "user-went-online",
	KindWentOffline:       "user-went-offline",
	KindCheckOnlineStatus: "checkOnlineStatus",
	KindJoinChat:          "joinChat",
	KindLeaveChat:         "leaveChat",
	KindTyping:            "typing",
	KindStopTyping:        "stopTyping",
}

var inboundByName = func() map[string]InboundKind {
	m := make(map[string]InboundKind, numInboundKinds)
	for k, name := range inboundNames {
		m[name] = InboundKind(k)
	}
	return m
}()

// ParseInboundKind maps a wire name to its kind.
func ParseInboundKind(name string) (InboundKind, bool) {
	k, ok := inboundByName[name]
	return k, ok
}

func (k InboundKind) String() string {
	if k < 0 || k >= numInboundKinds {
		return "unknown"
	}
	return inboundNames[k]
}

// Budgeted reports whether the event counts against the per-connection rate limit.
// Presence changes and joinChat are state transitions a client cannot retry blindly, so
// they are always handled.
func (k InboundKind) Budgeted() bool {
	switch k {
	case KindWentOnline, KindWentOffline, KindJoinChat:
		return false
	}
	return true
}

// inbound is the envelope read from clients.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is the envelope written to clients.
type outbound struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

func encode(event Event, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

type chatRef struct {
	ChatID int `json:"chatId"`
}

type onlineStatusQuery struct {
	UserIDs []int `json:"userIds"`
}

type socketErrorPayload struct {
	Message string `json:"message"`
}
