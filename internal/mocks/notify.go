package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vendor-chat/internal/notify"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) NewMessage(ctx context.Context, msg notify.Message) {
	m.Called(ctx, msg)
}

func (m *NotifierMock) Failure(ctx context.Context, op string, err error) {
	m.Called(ctx, op, err)
}
