package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/directory"
	"vendor-chat/internal/models"
	"vendor-chat/internal/notify"
	"vendor-chat/internal/transport"
)

func (c *Controller) frameHandler(kind models.EventKind) transport.Handler {
	return func(body []byte) {
		ev, err := models.DecodeEvent(kind, body)
		if err != nil {
			jww.WARN.Printf("inbound frame dropped kind=%s: %v", kind, err)
			return
		}
		c.Handle(ev)
	}
}

// Handle applies one inbound event.
func (c *Controller) Handle(ev models.Event) {
	switch ev := ev.(type) {
	case models.Delivery:
		c.onDelivery(ev)
	case models.Typing:
		c.dir.PatchTyping(ev)
	case models.ReadReceipt:
		c.onReadReceipt(ev)
	case models.Presence:
		if ev.UserID != c.opts.UserID {
			c.dir.PatchPresence(ev)
		}
	}
}

func (c *Controller) onDelivery(ev models.Delivery) {
	me := c.opts.UserID
	msg := models.Message{
		ID:          ev.ID,
		ClientID:    ev.ClientID,
		SenderID:    ev.SenderID,
		RecipientID: ev.RecipientID,
		Content:     ev.Content,
		Timestamp:   ev.Timestamp,
	}
	if msg.RecipientID == "" {
		msg.RecipientID = me
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = models.At(c.opts.Clock.Now())
	}

	// Echo of our own message: confirm the optimistic copy.
	if ev.SenderID == me {
		if !c.store.Confirm(ev.ClientID, ev.ID, ev.Timestamp) && c.isOpen(msg.RecipientID) {
			msg.Status = models.StatusSent
			c.store.AppendIncoming(msg)
		}
		return
	}

	counterpart := ev.SenderID
	open := c.isOpen(counterpart)
	if open {
		msg.Status = models.StatusDelivered
		c.store.AppendIncoming(msg)
	}
	ev.RecipientID = msg.RecipientID
	ev.Timestamp = msg.Timestamp
	known := c.dir.PatchIncomingMessage(ev, open)

	name := notify.UnknownSender
	if conv, ok := c.dir.Get(counterpart); ok {
		name = conv.Name
	}
	c.notifier.NewMessage(c.context(), notify.Message{
		MessageID:     ev.ID,
		CounterpartID: counterpart,
		Name:          name,
		Preview:       notify.Preview(ev.Content),
		ReceivedAt:    msg.Timestamp.Time,
	})

	c.async(func(ctx context.Context) {
		if _, err := c.backend.MarkDelivered(ctx, counterpart, me); err != nil {
			c.fail(ctx, "mark-delivered", errors.Wrapf(err, "mark delivered from %s", counterpart))
		}
		if open {
			c.markRead(ctx, counterpart, ev.ID)
		}
	})

	if known {
		c.requestRefresh()
	} else {
		c.refreshAsync()
	}
}

// onReadReceipt marks our messages to the reader as read.
func (c *Controller) onReadReceipt(ev models.ReadReceipt) {
	me := c.opts.UserID
	c.store.MarkStatus(ev.MessageID, models.StatusRead)

	reader := ev.ReaderID
	if reader == "" && ev.SenderID != me {
		reader = ev.SenderID
	}
	if reader != "" && reader != me {
		c.store.MarkConversation(reader, me, models.StatusRead)
	}
}

func (c *Controller) onConnected() {
	jww.INFO.Printf("chat connected user_id=%s", c.opts.UserID)
	c.mu.Lock()
	c.linkUp = true
	status := c.presence
	c.mu.Unlock()

	// The transport announces ONLINE on every connection.
	if status != models.PresenceOnline {
		if err := c.transport.Publish(transport.DestStatus, models.Presence{UserID: c.opts.UserID, Status: status}); err != nil {
			jww.WARN.Printf("presence not restored user_id=%s status=%s: %v", c.opts.UserID, status, err)
		}
	}
	c.async(func(ctx context.Context) {
		if err := c.backend.UpdateOnlineStatus(ctx, c.opts.UserID, status); err != nil {
			c.fail(ctx, "status", errors.Wrap(err, "update online status"))
		}
		if err := c.refresh(ctx); err != nil {
			c.fail(ctx, "refresh", err)
		}
		// Events may have been missed while disconnected.
		if counterpart := c.Selected(); counterpart != "" {
			if _, err := c.store.LoadHistory(ctx, counterpart); err != nil {
				c.fail(ctx, "history", err)
			}
		}
	})
}

// onTransportError reports the first error after a live period as a lost
// connection; retries while disconnected are only logged.
func (c *Controller) onTransportError(err error) {
	jww.WARN.Printf("chat transport error user_id=%s state=%s: %v", c.opts.UserID, c.transport.State(), err)
	c.mu.Lock()
	wasUp := c.linkUp
	c.linkUp = false
	c.mu.Unlock()
	if wasUp && c.context().Err() == nil {
		c.fail(c.context(), "connection", errors.Wrap(err, "connection lost, reconnecting"))
	}
}

func (c *Controller) refresh(ctx context.Context) error {
	err := c.dir.Refresh(ctx)
	if errors.Is(err, directory.ErrStaleRefresh) {
		return nil
	}
	return err
}

func (c *Controller) refreshAsync() {
	c.async(func(ctx context.Context) {
		if err := c.refresh(ctx); err != nil {
			c.fail(ctx, "refresh", err)
		}
	})
}

// requestRefresh refreshes the directory unless the refresh budget is spent;
// the next poll catches up in that case.
func (c *Controller) requestRefresh() {
	if !c.refreshes.Allow() {
		jww.DEBUG.Printf("opportunistic refresh skipped user_id=%s", c.opts.UserID)
		return
	}
	c.refreshAsync()
}

func (c *Controller) startPolling() {
	ctx, ok := c.track(&c.wg)
	if !ok {
		return
	}
	ticker := c.opts.Clock.Ticker(c.opts.PollInterval)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
				if err := c.refresh(rctx); err != nil {
					c.fail(rctx, "refresh", err)
				}
				cancel()
			}
		}
	}()
}

// async runs fn on its own goroutine, bounded by the request timeout and
// cancelled on unmount.
func (c *Controller) async(fn func(ctx context.Context)) {
	parent, ok := c.track(&c.tasks)
	if !ok {
		return
	}
	go func() {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(parent, c.opts.RequestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// track registers a background goroutine with the session. It fails once
// the session is unmounted so Unmount can wait for every goroutine.
func (c *Controller) track(wg *sync.WaitGroup) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || c.ctx.Err() != nil {
		return nil, false
	}
	wg.Add(1)
	return c.ctx, true
}

// context returns the session context, or a cancelled one when not mounted.
func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.ctx
}
