package status

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/chat"
	"vendor-chat/internal/models"
	"vendor-chat/internal/notify"
	"vendor-chat/internal/transport"
)

// Session is the running chat session the server exposes.
type Session interface {
	UserID() string
	State() transport.State
	Selected() string
	Conversations() []models.Conversation
	Messages(counterpart string) []models.Message
	Select(ctx context.Context, counterpart string) ([]models.Message, error)
	SendTo(ctx context.Context, counterpart, text string) (models.Message, error)
	SetPresence(ctx context.Context, status models.PresenceStatus) error
	Unread(ctx context.Context) (models.UnreadCount, error)
	DeleteChat(ctx context.Context, counterpart string) error
}

// Handler serves the session endpoints.
type Handler struct {
	session Session
}

// NewHandler builds a Handler.
func NewHandler(session Session) *Handler {
	return &Handler{session: session}
}

// Health reports the transport state. It answers 503 until connected.
func (h *Handler) Health(c *gin.Context) {
	state := h.session.State()
	code := http.StatusOK
	if state != transport.StateConnected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"user_id": h.session.UserID(), "transport": state.String()})
}

// ListChats returns the directory.
func (h *Handler) ListChats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"selected": h.session.Selected(),
		"chats":    h.session.Conversations(),
	})
}

// Unread returns the server-side unread summary.
func (h *Handler) Unread(c *gin.Context) {
	count, err := h.session.Unread(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load unread count"})
		return
	}
	c.JSON(http.StatusOK, count)
}

// GetMessages returns the local log of a conversation.
func (h *Handler) GetMessages(c *gin.Context) {
	counterpart := c.Param("counterpart")
	c.JSON(http.StatusOK, gin.H{"messages": h.session.Messages(counterpart)})
}

// MarkRead opens a conversation, which loads its history and marks it read.
func (h *Handler) MarkRead(c *gin.Context) {
	msgs, err := h.session.Select(c.Request.Context(), c.Param("counterpart"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a message to a conversation. The open conversation of
// the session is left alone.
func (h *Handler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.session.SendTo(c.Request.Context(), c.Param("counterpart"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SetPresence announces ONLINE, OFFLINE or AWAY for the signed-in user.
func (h *Handler) SetPresence(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.PresenceStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err := h.session.SetPresence(c.Request.Context(), status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// DeleteChat removes a conversation.
func (h *Handler) DeleteChat(c *gin.Context) {
	if err := h.session.DeleteChat(c.Request.Context(), c.Param("counterpart")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoConversation), errors.Is(err, chat.ErrInvalidPresence):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, transport.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not connected"})
	default:
		jww.WARN.Printf("status request failed path=%s request_id=%s: %v", c.FullPath(), requestIDFromContext(c), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend request failed"})
	}
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, notifier notify.Notifier, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/notify-test", func(c *gin.Context) {
		if notifier == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifier not configured"})
			return
		}
		notifier.NewMessage(c.Request.Context(), notify.Message{
			MessageID:     requestIDFromContext(c),
			CounterpartID: "debug",
			Name:          "Debug",
			Preview:       "notification test",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
