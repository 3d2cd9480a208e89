package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"vendor-chat/internal/models"
)

// LocalIDPrefix marks ids generated for optimistic copies.
const LocalIDPrefix = "local-"

// HistoryFetcher loads the server-side history of a pair of users.
type HistoryFetcher interface {
	History(ctx context.Context, senderID, recipientID string) ([]models.Message, error)
}

// Store holds the ordered message log of each conversation of one user.
// Logs are keyed by counterpart id.
type Store struct {
	userID  string
	history HistoryFetcher

	mu   sync.RWMutex
	logs map[string][]models.Message
}

// New builds an empty store for userID.
func New(userID string, history HistoryFetcher) *Store {
	return &Store{
		userID:  userID,
		history: history,
		logs:    make(map[string][]models.Message),
	}
}

// LoadHistory replaces the log for counterpart with the server's history.
// On error the current log is left untouched.
func (s *Store) LoadHistory(ctx context.Context, counterpart string) ([]models.Message, error) {
	msgs, err := s.history.History(ctx, s.userID, counterpart)
	if err != nil {
		return nil, errors.Wrapf(err, "load history with %s", counterpart)
	}

	log := make([]models.Message, 0, len(msgs))
	seen := make(map[string]int, len(msgs))
	for _, m := range msgs {
		if m.Status == "" {
			m.Status = models.StatusSent
		}
		if m.ID != "" {
			if idx, ok := seen[m.ID]; ok {
				log[idx] = merge(log[idx], m)
				continue
			}
			seen[m.ID] = len(log)
		}
		log = append(log, m)
	}

	s.mu.Lock()
	s.logs[counterpart] = log
	s.mu.Unlock()
	return clone(log), nil
}

// AppendIncoming applies a message received from the transport. A message
// whose id (or correlation id) is already held updates that entry in place.
func (s *Store) AppendIncoming(m models.Message) models.Message {
	if m.Status == "" {
		m.Status = models.StatusDelivered
	}
	counterpart := m.Counterpart(s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[counterpart]
	if idx := indexOf(log, m); idx >= 0 {
		log[idx] = merge(log[idx], m)
		return log[idx]
	}
	s.logs[counterpart] = append(log, m)
	return m
}

// AppendOutgoing stores an optimistic local copy of a message being sent.
// The copy carries a temporary id; a correlation id is generated when out
// has none.
func (s *Store) AppendOutgoing(out models.OutgoingMessage) models.Message {
	if out.ClientID == "" {
		out.ClientID = uuid.NewString()
	}
	m := models.Message{
		ID:          LocalIDPrefix + out.ClientID,
		ClientID:    out.ClientID,
		SenderID:    s.userID,
		RecipientID: out.RecipientID,
		Content:     out.Content,
		Timestamp:   out.Timestamp,
		Status:      models.StatusSent,
		Pending:     true,
	}

	s.mu.Lock()
	s.logs[out.RecipientID] = append(s.logs[out.RecipientID], m)
	s.mu.Unlock()
	return m
}

// Confirm replaces the temporary id of the pending message carrying clientID
// with the server-assigned id. It reports whether a pending copy was found.
func (s *Store) Confirm(clientID, id string, at models.Timestamp) bool {
	if clientID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for counterpart, log := range s.logs {
		for i := range log {
			if log[i].ClientID != clientID {
				continue
			}
			if id != "" {
				log[i].ID = id
			}
			if !at.IsZero() {
				log[i].Timestamp = at
			}
			log[i].Pending = false
			s.logs[counterpart] = log
			return true
		}
	}
	return false
}

// MarkStatus advances the status of the message with id. Status never moves
// backwards. It reports whether the message is held locally.
func (s *Store) MarkStatus(id string, status models.MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, log := range s.logs {
		for i := range log {
			if log[i].ID == id {
				log[i].Status = log[i].Status.Advance(status)
				return true
			}
		}
	}
	return false
}

// MarkConversation advances every message sent by senderID in the
// conversation with counterpart to status.
func (s *Store) MarkConversation(counterpart, senderID string, status models.MessageStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	log := s.logs[counterpart]
	for i := range log {
		if log[i].SenderID != senderID {
			continue
		}
		next := log[i].Status.Advance(status)
		if next != log[i].Status {
			log[i].Status = next
			n++
		}
	}
	return n
}

// Messages returns a copy of the log for counterpart.
func (s *Store) Messages(counterpart string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.logs[counterpart])
}

// Forget drops the log for counterpart.
func (s *Store) Forget(counterpart string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, counterpart)
}

func indexOf(log []models.Message, m models.Message) int {
	for i := range log {
		if m.ID != "" && log[i].ID == m.ID {
			return i
		}
		if m.ClientID != "" && log[i].ClientID == m.ClientID {
			return i
		}
	}
	return -1
}

// merge applies next over prev: last write wins except for status, which
// only advances.
func merge(prev, next models.Message) models.Message {
	out := next
	out.Status = prev.Status.Advance(next.Status)
	if out.ID == "" || (prev.ID != "" && isLocalID(out.ID)) {
		out.ID = prev.ID
	}
	if out.ClientID == "" {
		out.ClientID = prev.ClientID
	}
	if out.RecipientID == "" {
		out.RecipientID = prev.RecipientID
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = prev.Timestamp
	}
	out.Pending = prev.Pending && isLocalID(out.ID)
	return out
}

func isLocalID(id string) bool {
	return len(id) >= len(LocalIDPrefix) && id[:len(LocalIDPrefix)] == LocalIDPrefix
}

func clone(log []models.Message) []models.Message {
	if log == nil {
		return []models.Message{}
	}
	out := make([]models.Message, len(log))
	copy(out, log)
	return out
}
