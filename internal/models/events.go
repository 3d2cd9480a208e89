package models

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EventKind tags the inbound transport events.
type EventKind string

const (
	EventDelivery    EventKind = "delivery"
	EventTyping      EventKind = "typing"
	EventReadReceipt EventKind = "read_receipt"
	EventPresence    EventKind = "presence"
)

// Event is a decoded inbound frame.
type Event interface {
	Kind() EventKind
}

// Delivery notifies the recipient (or echoes to the sender) that a message
// was accepted by the server.
type Delivery struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId,omitempty"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId,omitempty"`
	Content     string    `json:"content"`
	Timestamp   Timestamp `json:"timestamp"`
}

func (Delivery) Kind() EventKind { return EventDelivery }

// Typing carries a typing indicator between two users.
type Typing struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Typing      bool   `json:"typing"`
}

func (Typing) Kind() EventKind { return EventTyping }

// ReadReceipt reports that MessageID, sent by SenderID, was read by ReaderID.
type ReadReceipt struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	ReaderID  string `json:"readerId,omitempty"`
}

func (ReadReceipt) Kind() EventKind { return EventReadReceipt }

// UnmarshalJSON also accepts the legacy {id, senderId, content:"READ"} shape.
func (r *ReadReceipt) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string `json:"id"`
		MessageID string `json:"messageId"`
		SenderID  string `json:"senderId"`
		ReaderID  string `json:"readerId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.MessageID = raw.MessageID
	if r.MessageID == "" {
		r.MessageID = raw.ID
	}
	r.SenderID = raw.SenderID
	r.ReaderID = raw.ReaderID
	return nil
}

// Presence is a user status broadcast.
type Presence struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}

func (Presence) Kind() EventKind { return EventPresence }

// DecodeEvent decodes a frame body received on a channel of the given kind.
func DecodeEvent(kind EventKind, body []byte) (Event, error) {
	switch kind {
	case EventDelivery:
		var ev Delivery
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, errors.Wrap(err, "decode delivery")
		}
		if ev.SenderID == "" {
			return nil, errors.New("decode delivery: missing senderId")
		}
		return ev, nil
	case EventTyping:
		var ev Typing
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, errors.Wrap(err, "decode typing")
		}
		return ev, nil
	case EventReadReceipt:
		var ev ReadReceipt
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, errors.Wrap(err, "decode read receipt")
		}
		if ev.MessageID == "" {
			return nil, errors.New("decode read receipt: missing message id")
		}
		return ev, nil
	case EventPresence:
		var ev Presence
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, errors.Wrap(err, "decode presence")
		}
		if ev.UserID == "" {
			return nil, errors.New("decode presence: missing userId")
		}
		ev.Status = ParsePresence(string(ev.Status))
		return ev, nil
	default:
		return nil, errors.Errorf("unknown event kind %q", kind)
	}
}
