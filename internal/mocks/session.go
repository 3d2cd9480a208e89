package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vendor-chat/internal/models"
	"vendor-chat/internal/transport"
)

// SessionMock stands in for a running chat controller.
type SessionMock struct {
	mock.Mock
}

func (m *SessionMock) UserID() string {
	return m.Called().String(0)
}

func (m *SessionMock) State() transport.State {
	return m.Called().Get(0).(transport.State)
}

func (m *SessionMock) Selected() string {
	return m.Called().String(0)
}

func (m *SessionMock) Conversations() []models.Conversation {
	args := m.Called()
	var convs []models.Conversation
	if val := args.Get(0); val != nil {
		convs = val.([]models.Conversation)
	}
	return convs
}

func (m *SessionMock) Messages(counterpart string) []models.Message {
	args := m.Called(counterpart)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs
}

func (m *SessionMock) Select(ctx context.Context, counterpart string) ([]models.Message, error) {
	args := m.Called(ctx, counterpart)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *SessionMock) Send(ctx context.Context, text string) (models.Message, error) {
	args := m.Called(ctx, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *SessionMock) Unread(ctx context.Context) (models.UnreadCount, error) {
	args := m.Called(ctx)
	var count models.UnreadCount
	if val := args.Get(0); val != nil {
		count = val.(models.UnreadCount)
	}
	return count, args.Error(1)
}

func (m *SessionMock) DeleteChat(ctx context.Context, counterpart string) error {
	args := m.Called(ctx, counterpart)
	return args.Error(0)
}

func (m *SessionMock) Open(ctx context.Context, counterpart, name string) ([]models.Message, error) {
	args := m.Called(ctx, counterpart, name)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *SessionMock) Keystroke() {
	m.Called()
}

func (m *SessionMock) SendTo(ctx context.Context, counterpart, text string) (models.Message, error) {
	args := m.Called(ctx, counterpart, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *SessionMock) SetPresence(ctx context.Context, status models.PresenceStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *SessionMock) Presence() models.PresenceStatus {
	return m.Called().Get(0).(models.PresenceStatus)
}

func (m *SessionMock) RefreshParticipant(ctx context.Context, counterpart string) error {
	args := m.Called(ctx, counterpart)
	return args.Error(0)
}
