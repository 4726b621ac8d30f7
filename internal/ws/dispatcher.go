package ws

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// Dispatcher fans events out to users and rooms. Delivery is best effort: offline users are
// skipped and nothing is queued for them.
type Dispatcher struct {
	hub *Hub
}

func NewDispatcher(hub *Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// NotifyChatParticipants emits to the user room of every online participant except actorID.
// Pass actorID 0 to include everyone. It returns the number of users notified.
func (d *Dispatcher) NotifyChatParticipants(ctx context.Context, chat models.Chat, actorID int, event Event, payload any) int {
	_, span := observability.Tracer().Start(ctx, "fanout.notify_chat", trace.WithAttributes(
		attribute.Int("chat.id", chat.ID),
		attribute.String("event", string(event)),
	))
	defer span.End()

	notified := 0
	for _, userID := range chat.Participants {
		if userID == actorID {
			continue
		}
		if d.NotifyUser(ctx, userID, event, payload) {
			notified++
		}
	}
	span.SetAttributes(attribute.Int("notified", notified))
	return notified
}

// NotifyUser emits to the user's room if the user is online.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID int, event Event, payload any) bool {
	if !d.hub.IsOnline(userID) {
		return false
	}
	return d.hub.EmitToRoom(UserRoom(userID), event, payload, "") > 0
}

// EmitToChatRoom sends to every socket joined to the chat room regardless of presence,
// except exceptConnID.
func (d *Dispatcher) EmitToChatRoom(ctx context.Context, chatID int, event Event, payload any, exceptConnID string) int {
	return d.hub.EmitToRoom(ChatRoom(chatID), event, payload, exceptConnID)
}

// IsOnline reports presence for read-model enrichment.
func (d *Dispatcher) IsOnline(userID int) bool {
	return d.hub.IsOnline(userID)
}

// OnlineStatus answers a presence query.
func (d *Dispatcher) OnlineStatus(userIDs []int) map[int]bool {
	return d.hub.OnlineStatus(userIDs)
}

// DeliveryEligible reports whether a freshly created message in chatID counts as delivered
// to userID: online and looking at that chat.
func (d *Dispatcher) DeliveryEligible(chatID int, userID int) bool {
	return d.hub.IsOnline(userID) && d.hub.UserInRoom(userID, ChatRoom(chatID))
}

// EvictFromChat removes the user's sockets from the chat room after losing membership.
func (d *Dispatcher) EvictFromChat(userID int, chatID int) {
	d.hub.EvictUser(userID, ChatRoom(chatID))
}
