package ws

import (
	"time"

	"chat-realtime/internal/observability"
)

// ConnInfo describes one live websocket connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	Username    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) identity() observability.WSIdentity {
	return observability.WSIdentity{UserID: i.UserID, DeviceID: i.DeviceID, IP: i.IP}
}

func (i ConnInfo) headers() map[string]string {
	return observability.BuildHeaders(i.RequestID, i.TraceID)
}
