package models

import "strings"

// MessageStatus is the delivery state of a chat message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the wire values.
func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// Advance returns the later of s and next. Status never moves backwards.
func (s MessageStatus) Advance(next MessageStatus) MessageStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// ParseMessageStatus parses a wire status, case-insensitively.
func ParseMessageStatus(v string) (MessageStatus, bool) {
	s := MessageStatus(strings.ToUpper(strings.TrimSpace(v)))
	return s, s.Valid()
}

// Message represents a chat message between two users.
type Message struct {
	ID          string        `json:"id,omitempty"`
	ClientID    string        `json:"clientId,omitempty"`
	ChatID      string        `json:"chatId,omitempty"`
	SenderID    string        `json:"senderId"`
	RecipientID string        `json:"recipientId"`
	Content     string        `json:"content"`
	Timestamp   Timestamp     `json:"timestamp"`
	Status      MessageStatus `json:"status,omitempty"`
	// Pending is set on optimistic local copies until the server confirms them.
	Pending bool `json:"-"`
}

// Counterpart returns the other party of the message relative to userID.
func (m Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// OutgoingMessage is the payload of the "send message" command.
type OutgoingMessage struct {
	ClientID    string    `json:"clientId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   Timestamp `json:"timestamp"`
}
