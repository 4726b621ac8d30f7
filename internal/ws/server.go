package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/delivery"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
)

// Options tunes per-connection behaviour.
type Options struct {
	SendBuffer   int
	EventRate    float64
	EventBurst   int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	MaxFrameSize int64
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:   64,
		EventRate:    20,
		EventBurst:   40,
		PingInterval: 25 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		MaxFrameSize: 64 << 10,
	}
}

type inboundHandler func(ctx context.Context, c *Client, data json.RawMessage)

// Server is the realtime layer: handshake, per-connection tasks, presence and auto-sync.
type Server struct {
	*Dispatcher

	hub       *Hub
	chats     repositories.ChatRepository
	users     repositories.UserRepository
	receipts  *delivery.Service
	validator auth.TokenValidator
	opts      Options
	handlers  [numInboundKinds]inboundHandler
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.EventRate <= 0 {
		o.EventRate = d.EventRate
	}
	if o.EventBurst <= 0 {
		o.EventBurst = d.EventBurst
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	return o
}

func NewServer(hub *Hub, chats repositories.ChatRepository, users repositories.UserRepository, receipts *delivery.Service, validator auth.TokenValidator, opts Options) *Server {
	s := &Server{
		Dispatcher: NewDispatcher(hub),
		hub:        hub,
		chats:      chats,
		users:      users,
		receipts:   receipts,
		validator:  validator,
		opts:       opts.withDefaults(),
	}
	s.handlers = [numInboundKinds]inboundHandler{
		KindWentOnline:        s.onWentOnline,
		KindWentOffline:       s.onWentOffline,
		KindCheckOnlineStatus: s.onCheckOnlineStatus,
		KindJoinChat:          s.onJoinChat,
		KindLeaveChat:         s.onLeaveChat,
		KindTyping:            s.onTyping(EventTyping),
		KindStopTyping:        s.onTyping(EventStopTyping),
	}
	return s
}

// Hub exposes the process presence table.
func (s *Server) Hub() *Hub { return s.hub }

// Shutdown closes every connection; their tasks clean up on exit.
func (s *Server) Shutdown() {
	s.hub.CloseAll()
}

func (s *Server) dispatch(ctx context.Context, c *Client, msg inbound) {
	kind, ok := ParseInboundKind(msg.Event)
	if !ok {
		log.Printf("websocket unknown event conn_id=%s event=%q", c.info.ConnID, msg.Event)
		return
	}
	observability.IncWSEvent("in", kind.String())
	s.handlers[kind](ctx, c, msg.Data)
}

// AnnounceOnline marks the connection as present, tells everyone else, then delivers the
// user's backlog.
func (s *Server) AnnounceOnline(ctx context.Context, c *Client) {
	s.hub.RegisterConnection(c.info.UserID, c.info.ConnID)
	s.hub.BroadcastExceptUser(c.info.UserID, EventUserOnline, models.PresenceUpdate{UserID: c.info.UserID, Username: c.info.Username})
	s.deliverBacklog(ctx, c.info.UserID)
}

// AnnounceOffline tells everyone else the user has no connections left.
func (s *Server) AnnounceOffline(ctx context.Context, userID int, username string) {
	s.hub.BroadcastExceptUser(userID, EventUserOffline, models.PresenceUpdate{UserID: userID, Username: username})
}

func (s *Server) deliverBacklog(ctx context.Context, userID int) {
	ctx, span := observability.Tracer().Start(ctx, "autosync.deliver_backlog", trace.WithAttributes(attribute.Int("user.id", userID)))
	defer span.End()

	batches, err := s.receipts.DeliverBacklog(ctx, userID)
	if err != nil {
		span.RecordError(err)
		log.Printf("auto delivery failed user_id=%d: %v", userID, err)
		return
	}
	for _, b := range batches {
		s.NotifyUser(ctx, b.SenderID, EventMessageDelivered, models.DeliveryReceipt{
			ChatID:      b.ChatID,
			MessageIDs:  b.MessageIDs,
			DeliveredTo: []int{userID},
			Status:      models.StatusDelivered,
		})
	}
}

// MarkSeen applies a chat read for viewerID and tells each sender about their own messages.
// It returns the affected message ids.
func (s *Server) MarkSeen(ctx context.Context, chatID int, viewerID int, trigger delivery.Trigger) ([]int, error) {
	ctx, span := observability.Tracer().Start(ctx, "autosync.mark_seen", trace.WithAttributes(
		attribute.Int("chat.id", chatID),
		attribute.Int("user.id", viewerID),
	))
	defer span.End()

	batches, err := s.receipts.MarkChatSeen(ctx, chatID, viewerID, trigger)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, b := range batches {
		s.NotifyUser(ctx, b.SenderID, EventMessageSeen, models.SeenReceipt{
			ChatID:     b.ChatID,
			MessageIDs: b.MessageIDs,
			SeenBy:     viewerID,
			Status:     models.StatusSeen,
		})
	}
	return delivery.AllIDs(batches), nil
}

func (s *Server) onWentOnline(ctx context.Context, c *Client, _ json.RawMessage) {
	s.AnnounceOnline(ctx, c)
}

func (s *Server) onWentOffline(ctx context.Context, c *Client, _ json.RawMessage) {
	if s.hub.RemoveConnection(c.info.UserID, c.info.ConnID) {
		s.AnnounceOffline(ctx, c.info.UserID, c.info.Username)
	}
}

func (s *Server) onCheckOnlineStatus(ctx context.Context, c *Client, data json.RawMessage) {
	var q onlineStatusQuery
	if err := json.Unmarshal(data, &q); err != nil {
		log.Printf("websocket bad checkOnlineStatus payload conn_id=%s: %v", c.info.ConnID, err)
		return
	}
	s.hub.EmitToConn(c.info.ConnID, EventOnlineStatusResponse, s.hub.OnlineStatus(q.UserIDs))
}

// maxJoinAttempts bounds how often a join is retried when membership changed during the lookup.
const maxJoinAttempts = 3

func (s *Server) onJoinChat(ctx context.Context, c *Client, data json.RawMessage) {
	chatID, ok := parseChatRef(c, data)
	if !ok {
		return
	}
	room := ChatRoom(chatID)
	for attempt := 0; ; attempt++ {
		if attempt == maxJoinAttempts {
			log.Printf("joinChat gave up after concurrent membership changes chat_id=%d user_id=%d", chatID, c.info.UserID)
			return
		}
		gen := s.hub.Generation(room)
		member, err := s.chats.IsParticipant(ctx, chatID, c.info.UserID)
		if err != nil {
			log.Printf("joinChat membership lookup failed chat_id=%d user_id=%d: %v", chatID, c.info.UserID, err)
			return
		}
		if !member {
			return
		}
		result := s.hub.JoinIfCurrent(c.info.ConnID, room, gen)
		if result == JoinConnGone {
			return
		}
		if result == Joined {
			break
		}
	}
	if _, err := s.MarkSeen(ctx, chatID, c.info.UserID, delivery.TriggerJoin); err != nil {
		log.Printf("auto seen failed chat_id=%d user_id=%d: %v", chatID, c.info.UserID, err)
	}
}

func (s *Server) onLeaveChat(ctx context.Context, c *Client, data json.RawMessage) {
	chatID, ok := parseChatRef(c, data)
	if !ok {
		return
	}
	s.hub.Leave(c.info.ConnID, ChatRoom(chatID))
}

func (s *Server) onTyping(event Event) inboundHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) {
		chatID, ok := parseChatRef(c, data)
		if !ok {
			return
		}
		if !s.hub.IsMember(c.info.ConnID, ChatRoom(chatID)) {
			return
		}
		s.EmitToChatRoom(ctx, chatID, event, models.TypingNotice{
			ChatID:   chatID,
			UserID:   c.info.UserID,
			Username: c.info.Username,
		}, c.info.ConnID)
	}
}

func parseChatRef(c *Client, data json.RawMessage) (int, bool) {
	var ref chatRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.ChatID <= 0 {
		log.Printf("websocket bad chat payload conn_id=%s: %v", c.info.ConnID, err)
		return 0, false
	}
	return ref.ChatID, true
}
