package rest

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"vendor-chat/internal/models"
)

// History returns the messages exchanged between sender and recipient,
// oldest first.
func (c *Client) History(ctx context.Context, senderID, recipientID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.getJSON(ctx, "history", "/messages"+segment(senderID, recipientID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ChatID resolves the backend chat id for a pair of users.
func (c *Client) ChatID(ctx context.Context, senderID, recipientID string) (string, error) {
	body, err := c.do(ctx, "chat_id", fasthttp.MethodGet, "/messages/chatId"+segment(senderID, recipientID), nil)
	if err != nil {
		return "", err
	}
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, `"`) {
		var id string
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			return "", errors.Wrap(err, "chat_id: decode response")
		}
		return id, nil
	}
	return raw, nil
}

// MarkDelivered marks messages from senderID to recipientID as delivered and
// returns the number of updated messages.
func (c *Client) MarkDelivered(ctx context.Context, senderID, recipientID string) (int, error) {
	return c.putCount(ctx, "mark_delivered", "/messages/delivered"+segment(senderID, recipientID))
}

// MarkRead marks messages from senderID to recipientID as read.
func (c *Client) MarkRead(ctx context.Context, senderID, recipientID string) (int, error) {
	return c.putCount(ctx, "mark_read", "/messages/read"+segment(senderID, recipientID))
}

func (c *Client) putCount(ctx context.Context, op, path string) (int, error) {
	body, err := c.do(ctx, op, fasthttp.MethodPut, path, nil)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: decode count", op)
	}
	return n, nil
}
