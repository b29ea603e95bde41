package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"roomchat-service/internal/feed"
	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/session"
)

const wsRoutingKey = "ws_events.rooms"

// FeedSocketHandler bridges a room's feed subscription onto a websocket
// connection: every snapshot the feed delivers is pushed to the client as a
// full replacement event.
type FeedSocketHandler struct {
	feed     *feed.Feed
	sessions *session.Manager
	logger   *zap.SugaredLogger
}

// NewFeedSocketHandler constructs a FeedSocketHandler.
func NewFeedSocketHandler(f *feed.Feed, sessions *session.Manager, logger *zap.SugaredLogger) *FeedSocketHandler {
	return &FeedSocketHandler{feed: f, sessions: sessions, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, opens the feed subscription and upgrades the
// connection. A missing room fails before the upgrade so the client can
// navigate away instead of holding a dead socket.
func (h *FeedSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("roomchat-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	principal, err := h.sessions.Authenticate(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	ctx = session.WithPrincipal(ctx, principal)

	sub, err := h.feed.Open(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open feed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	h.publishWSEvent(ctx, "ws_connect", roomID, info, "")

	// Writer: pump feed snapshots to the client until the subscription closes.
	go func() {
		for snapshot := range sub.Snapshots() {
			event := models.FeedEvent{Type: "snapshot", RoomID: roomID, Messages: snapshot}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warnw("websocket write failed", "room_id", roomID, "conn_id", info.ConnID, "error", err)
				h.publishWSEvent(ctx, "ws_error", roomID, info, err.Error())
				sub.Close()
				conn.Close()
				return
			}
		}
	}()

	// Reader: detect disconnects and release the subscription.
	go func() {
		var closeReason string
		defer func() {
			sub.Close()
			conn.Close()
			observability.DecWSActive()
			h.publishWSEvent(ctx, "ws_disconnect", roomID, info, closeReason)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.publishWSEvent(ctx, "ws_error", roomID, info, closeReason)
				}
				return
			}
		}
	}()
}

func (h *FeedSocketHandler) publishWSEvent(ctx context.Context, event string, roomID int, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"room_id":     roomID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
