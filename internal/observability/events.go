package observability

import (
	"context"
	"time"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Publisher is the sink for lifecycle events. rabbitmq.Publisher satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSIdentity describes the owner of a websocket connection in lifecycle events.
type WSIdentity struct {
	UserID   int    `json:"user_id"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

// WSLifecycle is the payload of ws_connect, ws_disconnect and ws_error events.
type WSLifecycle struct {
	Event      string     `json:"event"`
	ConnID     string     `json:"conn_id"`
	DurationMS int64      `json:"duration_ms"`
	Reason     string     `json:"reason"`
	Identity   WSIdentity `json:"identity"`
}

const WSRoutingKey = "ws_events.realtime"

// PublishWSLifecycle publishes a connection lifecycle event and counts it.
func PublishWSLifecycle(ctx context.Context, event string, connID string, identity WSIdentity, connectedAt time.Time, reason string, headers map[string]string) {
	IncWSEvent("lifecycle", event)
	var duration int64
	if !connectedAt.IsZero() && event != "ws_connect" {
		duration = time.Since(connectedAt).Milliseconds()
	}
	_ = PublishEvent(ctx, WSRoutingKey, EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: WSLifecycle{
			Event:      event,
			ConnID:     connID,
			DurationMS: duration,
			Reason:     reason,
			Identity:   identity,
		},
	}, headers)
}
