package notify

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"
)

const previewLen = 80

// UnknownSender is shown when the sender is not in the directory.
const UnknownSender = "Unknown"

// Message describes a newly received chat message.
type Message struct {
	MessageID     string    `json:"message_id,omitempty"`
	CounterpartID string    `json:"counterpart_id"`
	Name          string    `json:"name"`
	Preview       string    `json:"preview"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Notifier surfaces chat events to the user. Implementations must not block
// for long: they are called from inbound event handlers.
type Notifier interface {
	NewMessage(ctx context.Context, msg Message)
	Failure(ctx context.Context, op string, err error)
}

// Preview shortens content for display in a notification.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLen-1]) + "…"
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) NewMessage(_ context.Context, msg Message) {
	jww.INFO.Printf("new message from=%s name=%q preview=%q", msg.CounterpartID, msg.Name, msg.Preview)
}

func (LogNotifier) Failure(_ context.Context, op string, err error) {
	jww.WARN.Printf("chat operation failed op=%s: %v", op, err)
}

// Envelope is the AMQP notification payload.
type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	RequestID     string `json:"request_id"`
	UserID        string `json:"user_id"`
	Payload       any    `json:"payload"`
}

// FailurePayload is the payload of a chat_failure event.
type FailurePayload struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

const (
	EventNewMessage = "chat_message"
	EventFailure    = "chat_failure"
)

// AMQPNotifier publishes notifications for other processes (desktop toasts,
// mobile push) to pick up.
type AMQPNotifier struct {
	publisher  Publisher
	routingKey string
	service    string
	userID     string
	now        func() time.Time
}

func NewAMQPNotifier(publisher Publisher, routingKey, service, userID string) *AMQPNotifier {
	return &AMQPNotifier{
		publisher:  publisher,
		routingKey: routingKey,
		service:    service,
		userID:     userID,
		now:        time.Now,
	}
}

func (n *AMQPNotifier) NewMessage(ctx context.Context, msg Message) {
	n.emit(ctx, EventNewMessage, msg)
}

func (n *AMQPNotifier) Failure(ctx context.Context, op string, err error) {
	payload := FailurePayload{Op: op}
	if err != nil {
		payload.Error = err.Error()
	}
	n.emit(ctx, EventFailure, payload)
}

func (n *AMQPNotifier) emit(ctx context.Context, eventType string, payload any) {
	if n == nil || n.publisher == nil {
		return
	}
	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    n.now().UTC().Format(time.RFC3339Nano),
		Service:       n.service,
		RequestID:     uuid.NewString(),
		UserID:        n.userID,
		Payload:       payload,
	}
	if err := n.publisher.Publish(ctx, n.routingKey, envelope); err != nil {
		jww.WARN.Printf("notification publish failed event_type=%s: %v", eventType, err)
	}
}

// Multi fans notifications out to several notifiers.
type Multi []Notifier

func (m Multi) NewMessage(ctx context.Context, msg Message) {
	for _, n := range m {
		n.NewMessage(ctx, msg)
	}
}

func (m Multi) Failure(ctx context.Context, op string, err error) {
	for _, n := range m {
		n.Failure(ctx, op, err)
	}
}
