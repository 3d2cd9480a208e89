package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/time/rate"

	"vendor-chat/internal/directory"
	"vendor-chat/internal/models"
	"vendor-chat/internal/notify"
	"vendor-chat/internal/presence"
	"vendor-chat/internal/rest"
	"vendor-chat/internal/store"
	"vendor-chat/internal/transport"
)

var (
	// ErrIdentityRequired means no signed-in user is available; chat must not start.
	ErrIdentityRequired = errors.New("chat unavailable: user identity required, please sign in again")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNoConversation   = errors.New("no conversation selected")
	ErrInvalidPresence  = errors.New("presence must be ONLINE, OFFLINE or AWAY")
)

// Transport is the live channel the controller drives.
type Transport interface {
	Subscribe(destination string, h transport.Handler) error
	Connect(userID string, cb transport.Callbacks) error
	Publish(destination string, payload any) error
	Disconnect() error
	IsConnected() bool
	State() transport.State
}

// Backend is the REST collaborator.
type Backend interface {
	store.HistoryFetcher
	directory.Backend
	MarkDelivered(ctx context.Context, senderID, recipientID string) (int, error)
	MarkRead(ctx context.Context, senderID, recipientID string) (int, error)
	UpdateOnlineStatus(ctx context.Context, userID string, status models.PresenceStatus) error
	RefreshParticipant(ctx context.Context, participantID string) error
}

// Options configures a Controller.
type Options struct {
	UserID         string
	PollInterval   time.Duration
	TypingIdle     time.Duration
	RequestTimeout time.Duration
	// RefreshBurst bounds opportunistic refreshes after send/receive; they
	// refill at one per second.
	RefreshBurst int
	Clock        clock.Clock
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.TypingIdle <= 0 {
		o.TypingIdle = presence.DefaultIdle
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.RefreshBurst <= 0 {
		o.RefreshBurst = 3
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// DeepLink names a counterpart to open on mount.
type DeepLink struct {
	CounterpartID string
	Name          string
}

// Controller binds transport, message store and directory for one
// signed-in session.
type Controller struct {
	opts      Options
	transport Transport
	backend   Backend
	notifier  notify.Notifier
	store     *store.Store
	dir       *directory.Directory
	typing    *presence.Tracker
	refreshes *rate.Limiter

	mu       sync.Mutex
	mounted  bool
	selected string
	presence models.PresenceStatus
	// linkUp is set between OnConnected and the next transport error.
	linkUp bool
	ctx    context.Context
	cancel context.CancelFunc
	// wg tracks the poller, tasks the one-off background calls.
	wg    sync.WaitGroup
	tasks sync.WaitGroup
}

// New builds a controller for opts.UserID.
func New(t Transport, backend Backend, notifier notify.Notifier, opts Options) (*Controller, error) {
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return nil, ErrIdentityRequired
	}
	opts.setDefaults()
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}

	c := &Controller{
		opts:      opts,
		transport: t,
		backend:   backend,
		notifier:  notifier,
		store:     store.New(opts.UserID, backend),
		dir:       directory.New(opts.UserID, backend),
		refreshes: rate.NewLimiter(rate.Every(time.Second), opts.RefreshBurst),
		presence:  models.PresenceOnline,
	}
	c.typing = presence.NewTracker(opts.Clock, opts.TypingIdle, c.emitTyping)
	return c, nil
}

// UserID returns the signed-in user.
func (c *Controller) UserID() string {
	return c.opts.UserID
}

// Mount starts the session: subscribes the inbound channels, connects the
// transport, loads the directory, starts polling and opens link when given.
func (c *Controller) Mount(ctx context.Context, link *DeepLink) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = true
	c.presence = models.PresenceOnline
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	me := c.opts.UserID
	subs := map[string]transport.Handler{
		transport.MessageQueue(me): c.frameHandler(models.EventDelivery),
		transport.TypingQueue(me):  c.frameHandler(models.EventTyping),
		transport.ReadQueue(me):    c.frameHandler(models.EventReadReceipt),
		transport.TopicStatus:      c.frameHandler(models.EventPresence),
	}
	for dest, h := range subs {
		if err := c.transport.Subscribe(dest, h); err != nil {
			c.abortMount()
			return errors.Wrapf(err, "subscribe %s", dest)
		}
	}
	if err := c.transport.Connect(me, transport.Callbacks{
		OnConnected: c.onConnected,
		OnError:     c.onTransportError,
	}); err != nil {
		c.abortMount()
		return errors.Wrap(err, "connect transport")
	}

	if err := c.refresh(ctx); err != nil {
		c.fail(ctx, "refresh", err)
	}
	c.startPolling()

	if link != nil && link.CounterpartID != "" {
		if _, err := c.Open(ctx, link.CounterpartID, link.Name); err != nil {
			return err
		}
	}
	return nil
}

// Open selects the conversation with counterpart, first adding a synthetic
// directory entry named name when the directory does not know it.
func (c *Controller) Open(ctx context.Context, counterpart, name string) ([]models.Message, error) {
	counterpart = strings.TrimSpace(counterpart)
	if c.dir.Ensure(counterpart, strings.TrimSpace(name)) {
		jww.INFO.Printf("synthesized conversation counterpart=%s", counterpart)
	}
	return c.Select(ctx, counterpart)
}

func (c *Controller) abortMount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted = false
	c.cancel()
}

// Unmount ends the session: stops typing, publishes OFFLINE, disconnects and
// cancels polling and pending work.
func (c *Controller) Unmount(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = false
	c.selected = ""
	c.linkUp = false
	c.cancel()
	c.mu.Unlock()

	c.typing.StopAll()
	if err := c.backend.UpdateOnlineStatus(ctx, c.opts.UserID, models.PresenceOffline); err != nil {
		jww.WARN.Printf("offline status not stored user_id=%s: %v", c.opts.UserID, err)
	}
	err := c.transport.Disconnect()
	c.wg.Wait()
	c.tasks.Wait()
	if err != nil {
		return errors.Wrap(err, "disconnect transport")
	}
	return nil
}

// Select opens the conversation with counterpart: its history replaces the
// local log and the conversation is marked read.
func (c *Controller) Select(ctx context.Context, counterpart string) ([]models.Message, error) {
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return nil, ErrNoConversation
	}

	c.mu.Lock()
	prev := c.selected
	c.selected = counterpart
	c.mu.Unlock()
	if prev != "" && prev != counterpart {
		c.typing.Stop(prev)
	}

	msgs, err := c.store.LoadHistory(ctx, counterpart)
	if err != nil {
		c.fail(ctx, "history", err)
		return nil, err
	}
	c.markRead(ctx, counterpart, lastFrom(msgs, counterpart))
	c.refreshAsync()
	return msgs, nil
}

// Selected returns the open conversation, if any.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Controller) isOpen(counterpart string) bool {
	return c.Selected() == counterpart
}

// Keystroke records composer activity in the open conversation.
func (c *Controller) Keystroke() {
	counterpart := c.Selected()
	if counterpart == "" || !c.transport.IsConnected() {
		return
	}
	c.typing.Keystroke(counterpart)
}

// Send publishes text to the open conversation.
func (c *Controller) Send(ctx context.Context, text string) (models.Message, error) {
	return c.SendTo(ctx, c.Selected(), text)
}

// SendTo publishes text to counterpart and appends an optimistic copy to the
// store. The open conversation is not changed. Nothing is stored when the
// message cannot be published.
func (c *Controller) SendTo(ctx context.Context, counterpart, text string) (models.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return models.Message{}, ErrNoConversation
	}
	if !c.transport.IsConnected() {
		return models.Message{}, transport.ErrNotConnected
	}

	out := models.OutgoingMessage{
		ClientID:    uuid.NewString(),
		SenderID:    c.opts.UserID,
		RecipientID: counterpart,
		Content:     content,
		Timestamp:   models.At(c.opts.Clock.Now()),
	}
	if err := c.transport.Publish(transport.DestChat, out); err != nil {
		return models.Message{}, errors.Wrap(err, "send message")
	}

	local := c.store.AppendOutgoing(out)
	c.dir.PatchIncomingMessage(models.Delivery{
		ClientID:    out.ClientID,
		SenderID:    out.SenderID,
		RecipientID: out.RecipientID,
		Content:     out.Content,
		Timestamp:   out.Timestamp,
	}, true)
	c.typing.Stop(counterpart)
	c.requestRefresh()
	return local, nil
}

// DeleteChat removes the conversation with counterpart from view.
func (c *Controller) DeleteChat(ctx context.Context, counterpart string) error {
	c.mu.Lock()
	if c.selected == counterpart {
		c.selected = ""
	}
	c.mu.Unlock()
	c.typing.Stop(counterpart)
	c.store.Forget(counterpart)

	if err := c.dir.Delete(ctx, counterpart); err != nil {
		if rest.IsNotFound(err) {
			jww.DEBUG.Printf("chat already deleted counterpart=%s", counterpart)
			return nil
		}
		c.fail(ctx, "delete", err)
		return err
	}
	return nil
}

// SetPresence announces status on the live channel and mirrors it to the
// notification service. The status is re-announced after each reconnect.
func (c *Controller) SetPresence(ctx context.Context, status models.PresenceStatus) error {
	switch status {
	case models.PresenceOnline, models.PresenceOffline, models.PresenceAway:
	default:
		return ErrInvalidPresence
	}
	me := c.opts.UserID
	if err := c.transport.Publish(transport.DestStatus, models.Presence{UserID: me, Status: status}); err != nil {
		return errors.Wrap(err, "publish presence")
	}

	c.mu.Lock()
	c.presence = status
	c.mu.Unlock()
	if err := c.backend.UpdateOnlineStatus(ctx, me, status); err != nil {
		err = errors.Wrap(err, "update online status")
		c.fail(ctx, "status", err)
		return err
	}
	return nil
}

// Presence returns the status this user last announced.
func (c *Controller) Presence() models.PresenceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

// RefreshParticipant asks the notification service to reload the profile of
// counterpart, then refreshes the directory.
func (c *Controller) RefreshParticipant(ctx context.Context, counterpart string) error {
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return ErrNoConversation
	}
	if err := c.backend.RefreshParticipant(ctx, counterpart); err != nil {
		err = errors.Wrapf(err, "refresh participant %s", counterpart)
		c.fail(ctx, "refresh-participant", err)
		return err
	}
	c.refreshAsync()
	return nil
}

// Conversations returns the directory in display order.
func (c *Controller) Conversations() []models.Conversation {
	return c.dir.Snapshot()
}

// Conversation returns the directory entry for counterpart.
func (c *Controller) Conversation(counterpart string) (models.Conversation, bool) {
	return c.dir.Get(counterpart)
}

// Messages returns the local log of the conversation with counterpart.
func (c *Controller) Messages(counterpart string) []models.Message {
	return c.store.Messages(counterpart)
}

// Unread fetches the server-side unread summary.
func (c *Controller) Unread(ctx context.Context) (models.UnreadCount, error) {
	return c.dir.Unread(ctx)
}

// State reports the transport state.
func (c *Controller) State() transport.State {
	return c.transport.State()
}

// Refresh reloads the directory now.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Controller) emitTyping(counterpart string, typing bool) error {
	return c.transport.Publish(transport.DestTyping, models.Typing{
		SenderID:    c.opts.UserID,
		RecipientID: counterpart,
		Typing:      typing,
	})
}

// markRead zeroes the unread state of counterpart on both services and
// acknowledges lastID to the sender when the transport is up.
func (c *Controller) markRead(ctx context.Context, counterpart, lastID string) {
	me := c.opts.UserID
	if err := c.dir.MarkRead(ctx, counterpart); err != nil {
		c.fail(ctx, "mark-read", err)
	}
	if _, err := c.backend.MarkRead(ctx, counterpart, me); err != nil {
		c.fail(ctx, "mark-read", errors.Wrapf(err, "mark messages read from %s", counterpart))
	}
	c.store.MarkConversation(counterpart, counterpart, models.StatusRead)
	if lastID == "" {
		return
	}
	if !c.transport.IsConnected() {
		return
	}
	receipt := models.ReadReceipt{MessageID: lastID, SenderID: counterpart, ReaderID: me}
	if err := c.transport.Publish(transport.DestRead, receipt); err != nil {
		jww.WARN.Printf("read receipt not sent message_id=%s: %v", lastID, err)
	}
}

// lastFrom returns the id of the newest message sent by sender.
func lastFrom(msgs []models.Message, sender string) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID == sender && msgs[i].ID != "" {
			return msgs[i].ID
		}
	}
	return ""
}

// fail reports a non-fatal failure to the user.
func (c *Controller) fail(ctx context.Context, op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	jww.WARN.Printf("chat %s failed user_id=%s: %v", op, c.opts.UserID, err)
	c.notifier.Failure(ctx, op, err)
}
