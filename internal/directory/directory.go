package directory

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/models"
)

// Backend is the part of the notification service the directory needs.
type Backend interface {
	ChatList(ctx context.Context, userID string) ([]models.ChatSummary, error)
	UnreadCount(ctx context.Context, userID string) (models.UnreadCount, error)
	MarkChatRead(ctx context.Context, userID, otherID string) error
	DeleteChat(ctx context.Context, userID, otherID string) error
}

// ErrStaleRefresh is returned when a refresh response was overtaken by a
// more recent one and has been discarded.
var ErrStaleRefresh = errors.New("stale refresh discarded")

type entry struct {
	conv models.Conversation
	// seq is the sequence number of the last local patch.
	seq uint64
}

// Directory is the list of conversations of one user. It merges polled
// snapshots with live patches. Every mutation takes a sequence number; a
// snapshot requested before a patch cannot undo that patch.
type Directory struct {
	userID  string
	backend Backend

	mu      sync.RWMutex
	seq     uint64
	applied uint64
	order   []string
	entries map[string]*entry
	deleted map[string]uint64
}

// New builds an empty directory for userID.
func New(userID string, backend Backend) *Directory {
	return &Directory{
		userID:  userID,
		backend: backend,
		entries: make(map[string]*entry),
		deleted: make(map[string]uint64),
	}
}

func (d *Directory) next() uint64 {
	d.seq++
	return d.seq
}

// Refresh replaces the list with the server's view. Entries without a
// counterpart id or name are dropped. Synthetic entries the server does not
// know yet are kept at the head of the list.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	start := d.next()
	d.mu.Unlock()

	list, err := d.backend.ChatList(ctx, d.userID)
	if err != nil {
		return errors.Wrap(err, "refresh directory")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if start < d.applied {
		jww.DEBUG.Printf("directory refresh discarded seq=%d applied=%d", start, d.applied)
		return ErrStaleRefresh
	}
	d.applied = start

	entries := make(map[string]*entry, len(list))
	order := make([]string, 0, len(list))
	dropped := 0
	for _, s := range list {
		conv, ok := models.ConversationFromSummary(s)
		if !ok {
			dropped++
			continue
		}
		id := conv.CounterpartID
		if _, dup := entries[id]; dup {
			continue
		}
		if seq, gone := d.deleted[id]; gone && seq > start {
			continue
		}
		e := &entry{conv: conv, seq: start}
		if prev, ok := d.entries[id]; ok && prev.seq > start {
			e.seq = prev.seq
			e.conv.UnreadCount = prev.conv.UnreadCount
			e.conv.LastMessage = prev.conv.LastMessage
			e.conv.LastMessageAt = prev.conv.LastMessageAt
			e.conv.Presence = prev.conv.Presence
			e.conv.Typing = prev.conv.Typing
		}
		entries[id] = e
		order = append(order, id)
	}
	if dropped > 0 {
		jww.WARN.Printf("directory dropped malformed entries user_id=%s count=%d", d.userID, dropped)
	}

	var synthetic []string
	for _, id := range d.order {
		prev := d.entries[id]
		if _, ok := entries[id]; ok || !prev.conv.Synthetic {
			continue
		}
		entries[id] = prev
		synthetic = append(synthetic, id)
	}

	d.entries = entries
	d.order = append(synthetic, order...)
	for id, seq := range d.deleted {
		if seq <= start {
			delete(d.deleted, id)
		}
	}
	return nil
}

func (d *Directory) counterpartOf(senderID, recipientID string) string {
	if senderID == d.userID {
		return recipientID
	}
	return senderID
}

// PatchIncomingMessage updates the preview of the conversation a live
// message belongs to. The unread counter is incremented only for messages
// from the counterpart to a conversation that is not open. It reports
// whether the conversation is known.
func (d *Directory) PatchIncomingMessage(ev models.Delivery, open bool) bool {
	id := d.counterpartOf(ev.SenderID, ev.RecipientID)

	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return false
	}
	e.seq = d.next()
	e.conv.LastMessage = ev.Content
	if !ev.Timestamp.IsZero() {
		e.conv.LastMessageAt = ev.Timestamp.Time
	}
	if ev.SenderID == id {
		e.conv.Typing = false
		if !open {
			e.conv.UnreadCount++
		}
	}
	return true
}

// PatchTyping sets the typing flag of the sender's conversation.
func (d *Directory) PatchTyping(ev models.Typing) bool {
	if ev.RecipientID != "" && ev.RecipientID != d.userID {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[ev.SenderID]
	if !ok {
		return false
	}
	e.seq = d.next()
	e.conv.Typing = ev.Typing
	return true
}

// PatchPresence sets the presence of the conversation with ev.UserID.
func (d *Directory) PatchPresence(ev models.Presence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[ev.UserID]
	if !ok {
		return false
	}
	e.seq = d.next()
	e.conv.Presence = ev.Status
	if ev.Status != models.PresenceOnline {
		e.conv.Typing = false
	}
	return true
}

// MarkRead zeroes the unread counter of a conversation locally, then on the
// server. The local value stays zero when the server call fails.
func (d *Directory) MarkRead(ctx context.Context, counterpart string) error {
	d.mu.Lock()
	if e, ok := d.entries[counterpart]; ok {
		e.seq = d.next()
		e.conv.UnreadCount = 0
	}
	d.mu.Unlock()

	if err := d.backend.MarkChatRead(ctx, d.userID, counterpart); err != nil {
		return errors.Wrapf(err, "mark chat read with %s", counterpart)
	}
	return nil
}

// Ensure adds a synthetic entry for a counterpart the directory does not
// know yet. It reports whether an entry was created.
func (d *Directory) Ensure(counterpart, name string) bool {
	if counterpart == "" {
		return false
	}
	if name == "" {
		name = counterpart
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[counterpart]; ok {
		return false
	}
	delete(d.deleted, counterpart)
	d.entries[counterpart] = &entry{
		conv: models.Conversation{
			CounterpartID: counterpart,
			Name:          name,
			Presence:      models.PresenceOffline,
			Synthetic:     true,
		},
		seq: d.next(),
	}
	d.order = append([]string{counterpart}, d.order...)
	return true
}

// Delete removes a conversation from view and deletes it on the server.
func (d *Directory) Delete(ctx context.Context, counterpart string) error {
	d.mu.Lock()
	d.deleted[counterpart] = d.next()
	if _, ok := d.entries[counterpart]; ok {
		delete(d.entries, counterpart)
		for i, id := range d.order {
			if id == counterpart {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
	d.mu.Unlock()

	if err := d.backend.DeleteChat(ctx, d.userID, counterpart); err != nil {
		return errors.Wrapf(err, "delete chat with %s", counterpart)
	}
	return nil
}

// Unread fetches the server's unread summary.
func (d *Directory) Unread(ctx context.Context) (models.UnreadCount, error) {
	count, err := d.backend.UnreadCount(ctx, d.userID)
	if err != nil {
		return models.UnreadCount{}, errors.Wrap(err, "unread count")
	}
	return count, nil
}

// Get returns the conversation with counterpart.
func (d *Directory) Get(counterpart string) (models.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[counterpart]
	if !ok {
		return models.Conversation{}, false
	}
	return e.conv, true
}

// Snapshot returns the conversations in display order.
func (d *Directory) Snapshot() []models.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Conversation, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.entries[id].conv)
	}
	return out
}
