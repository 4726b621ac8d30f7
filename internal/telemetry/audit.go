package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for state-changing REST calls.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level    string `json:"level"`
	Action   string `json:"action,omitempty"`
	Resource string `json:"resource,omitempty"`
	Text     string `json:"text"`
}

// AuditRecord is one audited action.
type AuditRecord struct {
	Level     string
	Action    string
	Resource  string
	Text      string
	RequestID string
	UserID    int
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	var userID *string
	if rec.UserID != 0 {
		id := strconv.Itoa(rec.UserID)
		userID = &id
	}

	log.Printf("audit emit: level=%s action=%s resource=%s request_id=%s user_id=%d", rec.Level, rec.Action, rec.Resource, rec.RequestID, rec.UserID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:    rec.Level,
			Action:   rec.Action,
			Resource: rec.Resource,
			Text:     rec.Text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
