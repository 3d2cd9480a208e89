package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vendor-chat/internal/models"
)

// BackendMock stands in for the REST collaborator client.
type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) History(ctx context.Context, senderID, recipientID string) ([]models.Message, error) {
	args := m.Called(ctx, senderID, recipientID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *BackendMock) ChatID(ctx context.Context, senderID, recipientID string) (string, error) {
	args := m.Called(ctx, senderID, recipientID)
	return args.String(0), args.Error(1)
}

func (m *BackendMock) MarkDelivered(ctx context.Context, senderID, recipientID string) (int, error) {
	args := m.Called(ctx, senderID, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *BackendMock) MarkRead(ctx context.Context, senderID, recipientID string) (int, error) {
	args := m.Called(ctx, senderID, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *BackendMock) ChatList(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *BackendMock) UnreadCount(ctx context.Context, userID string) (models.UnreadCount, error) {
	args := m.Called(ctx, userID)
	var count models.UnreadCount
	if val := args.Get(0); val != nil {
		count = val.(models.UnreadCount)
	}
	return count, args.Error(1)
}

func (m *BackendMock) MarkChatRead(ctx context.Context, userID, otherID string) error {
	args := m.Called(ctx, userID, otherID)
	return args.Error(0)
}

func (m *BackendMock) DeleteChat(ctx context.Context, userID, otherID string) error {
	args := m.Called(ctx, userID, otherID)
	return args.Error(0)
}

func (m *BackendMock) UpdateOnlineStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	args := m.Called(ctx, userID, status)
	return args.Error(0)
}

func (m *BackendMock) RefreshParticipant(ctx context.Context, participantID string) error {
	args := m.Called(ctx, participantID)
	return args.Error(0)
}
