package models

import (
	"strings"
	"time"
)

// PresenceStatus is the coarse online state broadcast per user.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
	PresenceAway    PresenceStatus = "AWAY"
)

// ParsePresence normalises a presence value. Unknown values map to OFFLINE.
func ParsePresence(v string) PresenceStatus {
	switch PresenceStatus(strings.ToUpper(strings.TrimSpace(v))) {
	case PresenceOnline:
		return PresenceOnline
	case PresenceAway:
		return PresenceAway
	default:
		return PresenceOffline
	}
}

// ChatSummary is one entry of the chat list returned by the notification service.
type ChatSummary struct {
	UserID                string    `json:"userId"`
	ParticipantID         string    `json:"participantId"`
	ParticipantName       string    `json:"participantName"`
	ParticipantType       string    `json:"participantType,omitempty"`
	ParticipantProfileURL string    `json:"participantProfileUrl,omitempty"`
	ChatID                string    `json:"chatId,omitempty"`
	LastMessage           string    `json:"lastMessage"`
	LastMessageSenderID   string    `json:"lastMessageSenderId,omitempty"`
	LastMessageTimestamp  Timestamp `json:"lastMessageTimestamp"`
	UnreadCount           int       `json:"unreadCount"`
	OnlineStatus          string    `json:"onlineStatus"`
	IsTyping              bool      `json:"isTyping"`
}

// UnreadCount summarises unread messages for a user.
type UnreadCount struct {
	UserID           string `json:"userId"`
	TotalUnreadCount int    `json:"totalUnreadCount"`
	UnreadChatsCount int    `json:"unreadChatsCount"`
}

// Conversation is the client-side view of a chat with one counterpart.
type Conversation struct {
	CounterpartID string         `json:"counterpart_id"`
	Name          string         `json:"name"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	ChatID        string         `json:"chat_id,omitempty"`
	LastMessage   string         `json:"last_message"`
	LastMessageAt time.Time      `json:"last_message_at"`
	UnreadCount   int            `json:"unread_count"`
	Presence      PresenceStatus `json:"presence"`
	Typing        bool           `json:"typing"`
	Synthetic     bool           `json:"synthetic,omitempty"`
}

// ConversationFromSummary converts a chat list entry. ok is false when the
// entry lacks a counterpart id or display name.
func ConversationFromSummary(s ChatSummary) (Conversation, bool) {
	id := strings.TrimSpace(s.ParticipantID)
	name := strings.TrimSpace(s.ParticipantName)
	if id == "" || name == "" {
		return Conversation{}, false
	}
	unread := s.UnreadCount
	if unread < 0 {
		unread = 0
	}
	return Conversation{
		CounterpartID: id,
		Name:          name,
		AvatarURL:     s.ParticipantProfileURL,
		ChatID:        s.ChatID,
		LastMessage:   s.LastMessage,
		LastMessageAt: s.LastMessageTimestamp.Time,
		UnreadCount:   unread,
		Presence:      ParsePresence(s.OnlineStatus),
		Typing:        s.IsTyping,
	}, true
}
