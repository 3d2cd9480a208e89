package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-chat/internal/models"
)

type recorded struct {
	method string
	path   string
	query  string
}

type backend struct {
	mu    sync.Mutex
	calls []recorded
}

func (b *backend) Calls() []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recorded(nil), b.calls...)
}

func setupBackend(t *testing.T) (*Client, *backend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	b := &backend{}
	r.Use(func(c *gin.Context) {
		b.mu.Lock()
		b.calls = append(b.calls, recorded{c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery})
		b.mu.Unlock()
		c.Next()
	})

	api := r.Group("/api")
	api.GET("/messages/*path", func(c *gin.Context) {
		parts := strings.Split(strings.Trim(c.Param("path"), "/"), "/")
		switch {
		case len(parts) == 3 && parts[0] == "chatId":
			c.String(http.StatusOK, "chat-"+parts[1]+"-"+parts[2])
		case len(parts) == 2:
			sender, recipient := parts[0], parts[1]
			c.JSON(http.StatusOK, []gin.H{
				{"id": "m1", "senderId": sender, "recipientId": recipient, "content": "hello", "timestamp": "2024-05-01T10:00:00", "status": "READ"},
				{"id": "m2", "senderId": recipient, "recipientId": sender, "content": "hi", "timestamp": "2024-05-01T10:01:00Z", "status": "DELIVERED"},
			})
		default:
			c.Status(http.StatusNotFound)
		}
	})
	api.PUT("/messages/delivered/:sender/:recipient", func(c *gin.Context) {
		c.String(http.StatusOK, "3")
	})
	api.PUT("/messages/read/:sender/:recipient", func(c *gin.Context) {
		c.String(http.StatusOK, "2")
	})
	api.GET("/chat-notifications/:user/chats", func(c *gin.Context) {
		if c.Param("user") == "broken" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
			return
		}
		c.JSON(http.StatusOK, []gin.H{
			{"userId": c.Param("user"), "participantId": "c1", "participantName": "Sarah Chen", "lastMessage": "Thanks!", "lastMessageTimestamp": "2024-05-01T10:00:00", "unreadCount": 2, "onlineStatus": "ONLINE", "isTyping": false},
		})
	})
	api.GET("/chat-notifications/:user/unread-count", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.Param("user"), "totalUnreadCount": 5, "unreadChatsCount": 2})
	})
	api.PUT("/chat-notifications/:user/mark-read/:other", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.DELETE("/chat-notifications/:user/chats/:other", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.PUT("/chat-notifications/:user/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.PUT("/chat-notifications/:user/refresh", func(c *gin.Context) { c.Status(http.StatusOK) })

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", 2*time.Second), b
}

func TestHistoryDecodesMessages(t *testing.T) {
	client, _ := setupBackend(t)

	msgs, err := client.History(context.Background(), "v1", "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, models.StatusRead, msgs[0].Status)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msgs[0].Timestamp.Time)
	assert.Equal(t, "c1", msgs[1].SenderID)
}

func TestMarkCountsAndChatID(t *testing.T) {
	client, b := setupBackend(t)
	ctx := context.Background()

	n, err := client.MarkDelivered(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = client.MarkRead(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	id, err := client.ChatID(ctx, "v1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "chat-v1-c1", id)

	calls := b.Calls()
	assert.Equal(t, recorded{http.MethodPut, "/api/messages/delivered/c1/v1", ""}, calls[0])
	assert.Equal(t, recorded{http.MethodPut, "/api/messages/read/c1/v1", ""}, calls[1])
}

func TestChatListAndUnreadCount(t *testing.T) {
	client, _ := setupBackend(t)
	ctx := context.Background()

	list, err := client.ChatList(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Sarah Chen", list[0].ParticipantName)
	assert.Equal(t, 2, list[0].UnreadCount)

	unread, err := client.UnreadCount(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCount{UserID: "v1", TotalUnreadCount: 5, UnreadChatsCount: 2}, unread)
}

func TestNotificationCommands(t *testing.T) {
	client, b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, client.MarkChatRead(ctx, "v1", "c1"))
	require.NoError(t, client.DeleteChat(ctx, "v1", "c1"))
	require.NoError(t, client.UpdateOnlineStatus(ctx, "v1", models.PresenceOnline))
	require.NoError(t, client.RefreshParticipant(ctx, "c1"))

	assert.Equal(t, []recorded{
		{http.MethodPut, "/api/chat-notifications/v1/mark-read/c1", ""},
		{http.MethodDelete, "/api/chat-notifications/v1/chats/c1", ""},
		{http.MethodPut, "/api/chat-notifications/v1/status", "status=ONLINE"},
		{http.MethodPut, "/api/chat-notifications/c1/refresh", ""},
	}, b.Calls())
}

func TestStatusErrors(t *testing.T) {
	client, _ := setupBackend(t)

	_, err := client.ChatList(context.Background(), "broken")
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Contains(t, se.Body, "boom")
	assert.False(t, IsNotFound(err))

	_, err = client.History(context.Background(), "v1", "")
	assert.True(t, IsNotFound(err))
}

func TestCancelledContext(t *testing.T) {
	client, b := setupBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.History(ctx, "v1", "c1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.Calls())
}
