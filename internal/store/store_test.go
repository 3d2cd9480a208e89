package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vendor-chat/internal/mocks"
	"vendor-chat/internal/models"
)

func at(minute int) models.Timestamp {
	return models.At(time.Date(2024, 5, 1, 10, minute, 0, 0, time.UTC))
}

func outgoing(content string, ts models.Timestamp) models.OutgoingMessage {
	return models.OutgoingMessage{SenderID: "u1", RecipientID: "u2", Content: content, Timestamp: ts}
}

func history() []models.Message {
	return []models.Message{
		{ID: "m1", SenderID: "u1", RecipientID: "u2", Content: "hi", Timestamp: at(0), Status: models.StatusRead},
		{ID: "m2", SenderID: "u2", RecipientID: "u1", Content: "hello", Timestamp: at(1), Status: models.StatusRead},
		{ID: "m3", SenderID: "u1", RecipientID: "u2", Content: "menu?", Timestamp: at(2), Status: models.StatusDelivered},
		{ID: "m4", SenderID: "u2", RecipientID: "u1", Content: "sure", Timestamp: at(3), Status: models.StatusDelivered},
		{ID: "m5", SenderID: "u1", RecipientID: "u2", Content: "thanks", Timestamp: at(4), Status: models.StatusSent},
	}
}

func TestLoadHistoryReplacesLog(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("History", mock.Anything, "u1", "u2").Return(history(), nil).Twice()
	s := New("u1", backend)

	s.AppendIncoming(models.Message{ID: "stale", SenderID: "u2", RecipientID: "u1", Content: "old"})

	first, err := s.LoadHistory(context.Background(), "u2")
	require.NoError(t, err)
	second, err := s.LoadHistory(context.Background(), "u2")
	require.NoError(t, err)

	require.Len(t, first, 5)
	assert.Equal(t, first, second)
	assert.Equal(t, first, s.Messages("u2"))
	for i, m := range s.Messages("u2") {
		assert.Equal(t, history()[i].ID, m.ID)
	}
	backend.AssertExpectations(t)
}

func TestLoadHistoryErrorKeepsLog(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("History", mock.Anything, "u1", "u2").Return(([]models.Message)(nil), assert.AnError).Once()
	s := New("u1", backend)
	s.AppendIncoming(models.Message{ID: "m9", SenderID: "u2", RecipientID: "u1", Content: "kept"})

	_, err := s.LoadHistory(context.Background(), "u2")
	require.ErrorIs(t, err, assert.AnError)
	require.Len(t, s.Messages("u2"), 1)
	assert.Equal(t, "kept", s.Messages("u2")[0].Content)
}

func TestLoadHistoryCollapsesDuplicateIDs(t *testing.T) {
	backend := new(mocks.BackendMock)
	msgs := append(history(), models.Message{ID: "m3", SenderID: "u1", RecipientID: "u2", Content: "menu?", Timestamp: at(2), Status: models.StatusSent})
	backend.On("History", mock.Anything, "u1", "u2").Return(msgs, nil).Once()
	s := New("u1", backend)

	log, err := s.LoadHistory(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, log, 5)
	assert.Equal(t, models.StatusDelivered, log[2].Status)
}

func TestAppendIncomingDeduplicatesByID(t *testing.T) {
	s := New("u1", nil)
	m := models.Message{ID: "m1", SenderID: "u2", RecipientID: "u1", Content: "hi"}

	s.AppendIncoming(m)
	m.Content = "hi (edited)"
	s.AppendIncoming(m)

	log := s.Messages("u2")
	require.Len(t, log, 1)
	assert.Equal(t, "hi (edited)", log[0].Content)
	assert.Equal(t, models.StatusDelivered, log[0].Status)
}

func TestOutgoingEchoReplacesOptimisticCopy(t *testing.T) {
	s := New("u1", nil)
	local := s.AppendOutgoing(outgoing("hello", at(5)))

	assert.True(t, strings.HasPrefix(local.ID, LocalIDPrefix))
	assert.NotEmpty(t, local.ClientID)
	assert.True(t, local.Pending)
	assert.Equal(t, models.StatusSent, local.Status)

	echo := s.AppendIncoming(models.Message{
		ID:          "srv-1",
		ClientID:    local.ClientID,
		SenderID:    "u1",
		RecipientID: "u2",
		Content:     "hello",
		Timestamp:   at(6),
		Status:      models.StatusSent,
	})

	log := s.Messages("u2")
	require.Len(t, log, 1)
	assert.Equal(t, "srv-1", log[0].ID)
	assert.Equal(t, at(6), log[0].Timestamp)
	assert.False(t, log[0].Pending)
	assert.Equal(t, log[0], echo)
}

func TestAppendOutgoingKeepsClientID(t *testing.T) {
	s := New("u1", nil)
	out := outgoing("hello", at(5))
	out.ClientID = "c-42"

	local := s.AppendOutgoing(out)
	assert.Equal(t, "c-42", local.ClientID)
	assert.Equal(t, LocalIDPrefix+"c-42", local.ID)
	assert.Equal(t, "u1", local.SenderID)
}

func TestConfirm(t *testing.T) {
	s := New("u1", nil)
	local := s.AppendOutgoing(outgoing("hello", at(5)))

	assert.False(t, s.Confirm("", "srv-1", at(6)))
	assert.False(t, s.Confirm("unknown", "srv-1", at(6)))
	require.True(t, s.Confirm(local.ClientID, "srv-1", models.Timestamp{}))

	log := s.Messages("u2")
	assert.Equal(t, "srv-1", log[0].ID)
	assert.Equal(t, at(5), log[0].Timestamp)
	assert.False(t, log[0].Pending)
}

func TestMarkStatusIsMonotonic(t *testing.T) {
	s := New("u1", nil)
	s.AppendIncoming(models.Message{ID: "m1", SenderID: "u1", RecipientID: "u2", Status: models.StatusSent})

	steps := []models.MessageStatus{
		models.StatusDelivered, models.StatusSent, models.StatusRead, models.StatusDelivered, models.StatusSent,
	}
	want := []models.MessageStatus{
		models.StatusDelivered, models.StatusDelivered, models.StatusRead, models.StatusRead, models.StatusRead,
	}
	for i, st := range steps {
		require.True(t, s.MarkStatus("m1", st))
		assert.Equal(t, want[i], s.Messages("u2")[0].Status)
	}

	assert.False(t, s.MarkStatus("missing", models.StatusRead))
}

func TestAppendIncomingNeverRegressesStatus(t *testing.T) {
	s := New("u1", nil)
	s.AppendIncoming(models.Message{ID: "m1", SenderID: "u1", RecipientID: "u2", Status: models.StatusRead})
	s.AppendIncoming(models.Message{ID: "m1", SenderID: "u1", RecipientID: "u2", Status: models.StatusSent})

	assert.Equal(t, models.StatusRead, s.Messages("u2")[0].Status)
}

func TestMarkConversation(t *testing.T) {
	s := New("u1", nil)
	s.AppendIncoming(models.Message{ID: "m1", SenderID: "u1", RecipientID: "u2", Status: models.StatusSent})
	s.AppendIncoming(models.Message{ID: "m2", SenderID: "u2", RecipientID: "u1", Status: models.StatusDelivered})
	s.AppendIncoming(models.Message{ID: "m3", SenderID: "u1", RecipientID: "u2", Status: models.StatusRead})

	assert.Equal(t, 1, s.MarkConversation("u2", "u1", models.StatusRead))

	log := s.Messages("u2")
	assert.Equal(t, models.StatusRead, log[0].Status)
	assert.Equal(t, models.StatusDelivered, log[1].Status)
}

func TestForgetAndEmptyLog(t *testing.T) {
	s := New("u1", nil)
	assert.NotNil(t, s.Messages("u2"))
	assert.Empty(t, s.Messages("u2"))

	s.AppendOutgoing(outgoing("bye", at(1)))
	s.Forget("u2")
	assert.Empty(t, s.Messages("u2"))
}
