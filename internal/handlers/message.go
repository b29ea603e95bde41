package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/feed"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/session"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/upload"
)

// MessageHandler manages a room's message feed over HTTP. Sends go through
// the feed so the writer's own live subscription echo is the confirmation;
// the POST response body is not the rendered message.
type MessageHandler struct {
	feed    *feed.Feed
	uploads *upload.Pipeline
	audit   *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(f *feed.Feed, uploads *upload.Pipeline, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{feed: f, uploads: uploads, audit: audit}
}

// GetMessages handles GET /rooms/:room_id/messages: a one-shot full ordered
// snapshot. A missing room is 404 so clients navigate away instead of
// rendering a broken feed.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	msgs, err := h.feed.Snapshot(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage handles POST /rooms/:room_id/messages. JSON bodies carry text
// only; multipart bodies may add a file, which is uploaded first so the
// append never references a not-yet-available object. An upload failure
// appends nothing.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var text, attachmentURL string

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text = c.PostForm("text")

		if header, err := c.FormFile("file"); err == nil {
			file, err := header.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
				return
			}
			defer file.Close()

			stream, err := h.uploads.UploadRoomFile(c.Request.Context(), roomID, header.Filename, file, header.Size)
			if err != nil {
				if errors.Is(err, upload.ErrEmptyFile) {
					c.JSON(http.StatusBadRequest, gin.H{"error": "missing or empty file"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start upload"})
				return
			}

			url, err := stream.Wait()
			if err != nil {
				h.emitAudit(c, "ERROR", "attachment upload failed")
				c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
				return
			}
			attachmentURL = url
		}
	} else {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		text = req.Text
	}

	if err := h.feed.Append(c.Request.Context(), roomID, text, attachmentURL); err != nil {
		switch {
		case errors.Is(err, feed.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message needs text or an attachment"})
		case errors.Is(err, session.ErrNoSession):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to send messages"})
		case errors.Is(err, repositories.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.Status(http.StatusAccepted)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
