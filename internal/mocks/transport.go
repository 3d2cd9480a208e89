package mocks

import (
	"github.com/stretchr/testify/mock"

	"vendor-chat/internal/transport"
)

// TransportMock stands in for the live STOMP channel.
type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) Subscribe(destination string, h transport.Handler) error {
	args := m.Called(destination, h)
	return args.Error(0)
}

func (m *TransportMock) Connect(userID string, cb transport.Callbacks) error {
	args := m.Called(userID, cb)
	return args.Error(0)
}

func (m *TransportMock) Publish(destination string, payload any) error {
	args := m.Called(destination, payload)
	return args.Error(0)
}

func (m *TransportMock) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *TransportMock) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *TransportMock) State() transport.State {
	return m.Called().Get(0).(transport.State)
}
