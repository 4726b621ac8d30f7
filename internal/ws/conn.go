package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errClientClosed = errors.New("connection closed by server")

// Handle upgrades the connection, authenticates it and runs the connection task until it ends.
// An invalid token or a user missing from the store gets a socketError event before the
// socket is closed.
func (s *Server) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		return
	}

	id, err := s.validator.ValidateToken(ctx, tokenFromRequest(c.Request))
	if err != nil {
		s.rejectHandshake(span, conn, "invalid token")
		return
	}
	user, err := s.users.GetUser(ctx, id.UserID)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			log.Printf("websocket user lookup failed user_id=%d: %v", id.UserID, err)
			s.rejectHandshake(span, conn, "authentication unavailable")
			return
		}
		s.rejectHandshake(span, conn, "unknown user")
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      user.ID,
		Username:    user.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(attribute.Int("user.id", info.UserID), attribute.String("conn.id", info.ConnID))
	span.End()

	s.Serve(context.WithoutCancel(ctx), conn, info)
}

func tokenFromRequest(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func (s *Server) rejectHandshake(span trace.Span, conn *websocket.Conn, reason string) {
	span.SetStatus(codes.Error, reason)
	span.End()
	observability.IncWSEvent("lifecycle", "ws_auth_failed")
	rejectSocket(conn, s.opts.WriteWait, reason)
}

func rejectSocket(conn *websocket.Conn, writeWait time.Duration, reason string) {
	defer conn.Close()
	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline)
	frame, _ := encode(EventSocketError, socketErrorPayload{Message: reason})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
}

// Serve runs one connection as a task of two goroutines. Registry, room and presence
// entries are released on every exit path.
func (s *Server) Serve(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	client := newClient(conn, info, s.opts.SendBuffer, rate.NewLimiter(rate.Limit(s.opts.EventRate), s.opts.EventBurst))
	s.hub.Attach(client)
	observability.IncWSActive()
	observability.PublishWSLifecycle(ctx, "ws_connect", info.ConnID, info.identity(), info.ConnectedAt, "", info.headers())

	var closeReason string
	defer func() {
		client.Close()
		userID, wentOffline := s.hub.Detach(info.ConnID)
		if wentOffline {
			s.AnnounceOffline(ctx, userID, info.Username)
		}
		observability.DecWSActive()
		observability.PublishWSLifecycle(ctx, "ws_disconnect", info.ConnID, info.identity(), info.ConnectedAt, closeReason, info.headers())
	}()

	s.hub.EmitToConn(info.ConnID, EventConnected, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writeLoop(gctx, client) })
	g.Go(func() error { return s.readLoop(gctx, client) })
	err := g.Wait()

	if err != nil {
		closeReason = err.Error()
		if !errors.Is(err, errClientClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Printf("websocket closed with error conn_id=%s user_id=%d: %v", info.ConnID, info.UserID, err)
			observability.PublishWSLifecycle(ctx, "ws_error", info.ConnID, info.identity(), info.ConnectedAt, closeReason, info.headers())
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *Client) error {
	c.conn.SetReadLimit(s.opts.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return errClientClosed
			default:
				return err
			}
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("websocket bad frame conn_id=%s: %v", c.info.ConnID, err)
			continue
		}
		if !s.admit(c, msg.Event) {
			continue
		}
		s.dispatch(ctx, c, msg)
	}
}

// admit applies the event budget. A limited event is answered with socketError so the
// client knows it was not handled.
func (s *Server) admit(c *Client, event string) bool {
	if kind, ok := ParseInboundKind(event); ok && !kind.Budgeted() {
		return true
	}
	if c.allow() {
		return true
	}
	observability.IncWSDropped("inbound")
	s.hub.EmitToConn(c.info.ConnID, EventSocketError, socketErrorPayload{Message: "rate limited: " + event})
	return false
}

// writeLoop is the only writer of the socket; it closes the socket when it returns,
// which unblocks the reader.
func (s *Server) writeLoop(ctx context.Context, c *Client) error {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), time.Now().Add(s.opts.WriteWait))
			return errClientClosed
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				return err
			}
		}
	}
}
