package rest

import (
	"context"
	"net/url"

	"github.com/valyala/fasthttp"

	"vendor-chat/internal/models"
)

// ChatList returns the chat summaries of userID.
func (c *Client) ChatList(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	var list []models.ChatSummary
	if err := c.getJSON(ctx, "chat_list", "/chat-notifications"+segment(userID, "chats"), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// UnreadCount returns the unread totals of userID.
func (c *Client) UnreadCount(ctx context.Context, userID string) (models.UnreadCount, error) {
	var out models.UnreadCount
	err := c.getJSON(ctx, "unread_count", "/chat-notifications"+segment(userID, "unread-count"), &out)
	return out, err
}

// MarkChatRead zeroes the unread counter of the pair on the server.
func (c *Client) MarkChatRead(ctx context.Context, userID, otherID string) error {
	_, err := c.do(ctx, "mark_chat_read", fasthttp.MethodPut, "/chat-notifications"+segment(userID, "mark-read", otherID), nil)
	return err
}

// DeleteChat removes the chat with otherID from userID's list.
func (c *Client) DeleteChat(ctx context.Context, userID, otherID string) error {
	_, err := c.do(ctx, "delete_chat", fasthttp.MethodDelete, "/chat-notifications"+segment(userID, "chats", otherID), nil)
	return err
}

// UpdateOnlineStatus records the presence of userID.
func (c *Client) UpdateOnlineStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	query := url.Values{"status": []string{string(status)}}
	_, err := c.do(ctx, "update_status", fasthttp.MethodPut, "/chat-notifications"+segment(userID, "status"), query)
	return err
}

// RefreshParticipant asks the server to reload cached participant details.
func (c *Client) RefreshParticipant(ctx context.Context, participantID string) error {
	_, err := c.do(ctx, "refresh_participant", fasthttp.MethodPut, "/chat-notifications"+segment(participantID, "refresh"), nil)
	return err
}
