package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/profile"
	"roomchat-service/internal/session"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/upload"
)

// ProfileHandler manages the profile screen endpoints. Name and avatar are
// committed independently; a failed commit leaves the stored profile as it was.
type ProfileHandler struct {
	editor   *profile.Editor
	sessions *session.Manager
	audit    *telemetry.AuditEmitter
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(editor *profile.Editor, sessions *session.Manager, audit *telemetry.AuditEmitter) *ProfileHandler {
	return &ProfileHandler{editor: editor, sessions: sessions, audit: audit}
}

// GetProfile handles GET /profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	principal, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}

	p, err := h.editor.Load(c.Request.Context(), principal.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// UpdateName handles PUT /profile/name.
func (h *ProfileHandler) UpdateName(c *gin.Context) {
	principal, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}

	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.editor.SaveName(c.Request.Context(), principal.ID, req.DisplayName); err != nil {
		if errors.Is(err, profile.ErrEmptyName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display name is empty"})
			return
		}
		h.emitAudit(c, "ERROR", "profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	h.emitAudit(c, "INFO", "Display name updated")
	c.Status(http.StatusNoContent)
}

// UpdateAvatar handles PUT /profile/avatar. A JSON body commits a remote
// URL; a multipart body uploads the (cropped) image first and commits the
// stored object's URL, never a transient local reference.
func (h *ProfileHandler) UpdateAvatar(c *gin.Context) {
	principal, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or empty file"})
			return
		}
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()

		url, err := h.editor.SaveAvatarImage(c.Request.Context(), principal.ID, header.Filename, file, header.Size)
		if err != nil {
			if errors.Is(err, upload.ErrEmptyFile) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing or empty file"})
				return
			}
			h.emitAudit(c, "ERROR", "avatar upload failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
			return
		}

		h.emitAudit(c, "INFO", "Avatar updated")
		c.JSON(http.StatusOK, gin.H{"avatar_url": url})
		return
	}

	var req struct {
		AvatarURL string `json:"avatar_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.editor.SaveAvatarURL(c.Request.Context(), principal.ID, req.AvatarURL); err != nil {
		h.emitAudit(c, "ERROR", "profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	h.emitAudit(c, "INFO", "Avatar updated")
	c.JSON(http.StatusOK, gin.H{"avatar_url": req.AvatarURL})
}

func (h *ProfileHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
