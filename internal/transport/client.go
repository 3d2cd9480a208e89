package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/models"
	"vendor-chat/internal/observability"
)

var (
	// ErrNotConnected is returned by Publish while no live connection exists.
	ErrNotConnected = errors.New("transport not connected")
	// ErrAlreadyConnected is returned by Connect for a second identity.
	ErrAlreadyConnected = errors.New("transport attached to another user, disconnect first")
	ErrEmptyUser        = errors.New("transport requires a user id")

	errSubscriptionClosed = errors.New("subscription closed by broker")
)

// Handler receives the body of an inbound frame.
type Handler func(body []byte)

// Callbacks are invoked from the connection goroutine.
type Callbacks struct {
	OnConnected func()
	OnError     func(error)
}

// Config controls a Client.
type Config struct {
	URL               string
	Login             string
	Passcode          string
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	ReceiptTimeout    time.Duration
	// Dial overrides the dialer derived from URL.
	Dial  Dialer
	Clock clock.Clock
}

func (c *Config) setDefaults() {
	if c.HeartbeatOutgoing == 0 {
		c.HeartbeatOutgoing = 4 * time.Second
	}
	if c.HeartbeatIncoming == 0 {
		c.HeartbeatIncoming = 4 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Client owns one STOMP connection for one signed-in user and keeps it alive
// until Disconnect. Connection loss is detected through the subscriptions, so
// at least one destination should be subscribed.
type Client struct {
	cfg  Config
	dial Dialer
	host string

	mu     sync.RWMutex
	state  State
	userID string
	conn   *stomp.Conn
	subs   map[string]Handler
	order  []string
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient builds a disconnected client.
func NewClient(cfg Config) (*Client, error) {
	cfg.setDefaults()
	dial := cfg.Dial
	if dial == nil {
		d, err := NewDialer(cfg.URL)
		if err != nil {
			return nil, err
		}
		dial = d
	}
	var host string
	if u, err := url.Parse(cfg.URL); err == nil {
		host = u.Hostname()
	}
	observability.SetTransportState(StateDisconnected.String())
	return &Client{
		cfg:  cfg,
		dial: dial,
		host: host,
		subs: make(map[string]Handler),
	}, nil
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether publishes can currently be delivered.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// UserID returns the identity the client is attached to.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Subscribe registers h for destination. Registrations survive reconnects;
// a second registration for the same destination replaces the handler.
func (c *Client) Subscribe(destination string, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, known := c.subs[destination]
	c.subs[destination] = h
	if known {
		// The live subscription dispatches to whatever handler is registered.
		return nil
	}
	c.order = append(c.order, destination)
	if c.conn != nil {
		return c.subscribeLocked(c.conn, destination, c.errs)
	}
	return nil
}

// Connect starts the connection loop for userID and returns immediately.
// Calling it again for the same user is a no-op.
func (c *Client) Connect(userID string, cb Callbacks) error {
	if userID == "" {
		return ErrEmptyUser
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		if c.userID == userID {
			return nil
		}
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.userID = userID
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setStateLocked(StateConnecting)
	go c.run(ctx, userID, cb)
	return nil
}

// Publish sends payload as JSON to destination.
func (c *Client) Publish(destination string, payload any) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()
	if conn == nil || state != StateConnected {
		observability.IncDropped(metricLabel(destination))
		jww.WARN.Printf("transport publish dropped destination=%s state=%s", destination, state)
		return ErrNotConnected
	}
	return c.send(conn, destination, payload)
}

// Disconnect publishes presence OFFLINE best effort and tears the connection
// down. It is safe to call repeatedly.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel, done, conn, userID := c.cancel, c.done, c.conn, c.userID
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	if conn != nil {
		offline := models.Presence{UserID: userID, Status: models.PresenceOffline}
		if err := c.within(func() error {
			return c.send(conn, DestStatus, offline, stomp.SendOpt.Receipt)
		}); err != nil {
			jww.WARN.Printf("transport offline presence failed user=%s: %v", userID, err)
		}
	}
	cancel()
	<-done

	c.mu.Lock()
	c.userID = ""
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	jww.INFO.Printf("transport disconnected user=%s", userID)
	return nil
}

func (c *Client) run(ctx context.Context, userID string, cb Callbacks) {
	defer close(c.done)

	for {
		conn, err := c.establish(ctx, cb)
		if err != nil {
			return
		}

		errs, err := c.attach(conn)
		if err != nil {
			c.fail(cb, err)
			_ = conn.MustDisconnect()
		} else {
			online := models.Presence{UserID: userID, Status: models.PresenceOnline}
			if err := c.send(conn, DestStatus, online); err != nil {
				jww.WARN.Printf("transport online presence failed user=%s: %v", userID, err)
			}
			jww.INFO.Printf("transport connected user=%s", userID)
			if cb.OnConnected != nil {
				cb.OnConnected()
			}

			select {
			case <-ctx.Done():
				c.detach()
				if err := c.within(conn.Disconnect); err != nil {
					_ = conn.MustDisconnect()
				}
				return
			case err := <-errs:
				c.detach()
				_ = conn.MustDisconnect()
				c.fail(cb, errors.Wrap(err, "connection lost"))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-c.cfg.Clock.After(c.cfg.ReconnectDelay):
		}
	}
}

// establish dials until a STOMP session is up or ctx is cancelled.
func (c *Client) establish(ctx context.Context, cb Callbacks) (*stomp.Conn, error) {
	var conn *stomp.Conn
	op := func() error {
		c.setState(StateConnecting)
		sc, err := c.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		conn = sc
		return nil
	}
	notify := func(err error, wait time.Duration) {
		observability.IncReconnect()
		jww.DEBUG.Printf("transport retry in %s", wait)
		c.fail(cb, err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.ReconnectDelay), ctx)
	if err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clk: c.cfg.Clock}); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		_ = conn.MustDisconnect()
		return nil, ctx.Err()
	}
	return conn, nil
}

func (c *Client) open(ctx context.Context) (*stomp.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	rwc, err := c.dial(dialCtx)
	if err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming),
	}
	if c.host != "" {
		opts = append(opts, stomp.ConnOpt.Host(c.host))
	}
	if c.cfg.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(c.cfg.Login, c.cfg.Passcode))
	}

	// stomp.Connect does not take a context; closing the stream unblocks it.
	stop := context.AfterFunc(dialCtx, func() { _ = rwc.Close() })
	conn, err := stomp.Connect(rwc, opts...)
	if !stop() {
		if err == nil {
			_ = conn.MustDisconnect()
		}
		return nil, errors.Wrap(dialCtx.Err(), "stomp handshake")
	}
	if err != nil {
		_ = rwc.Close()
		return nil, errors.Wrap(err, "stomp handshake")
	}
	return conn, nil
}

func (c *Client) attach(conn *stomp.Conn) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make(chan error, 1)
	for _, dest := range c.order {
		if err := c.subscribeLocked(conn, dest, errs); err != nil {
			return nil, err
		}
	}
	c.conn = conn
	c.errs = errs
	c.setStateLocked(StateConnected)
	return errs, nil
}

func (c *Client) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.errs = nil
}

func (c *Client) subscribeLocked(conn *stomp.Conn, destination string, errs chan<- error) error {
	sub, err := conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", destination)
	}
	label := metricLabel(destination)
	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				report(errs, msg.Err)
				return
			}
			observability.IncFrame("in", label)
			c.dispatch(destination, msg.Body)
		}
		report(errs, errSubscriptionClosed)
	}()
	return nil
}

func (c *Client) dispatch(destination string, body []byte) {
	c.mu.RLock()
	h := c.subs[destination]
	c.mu.RUnlock()
	if h != nil {
		h(body)
	}
}

func (c *Client) send(conn *stomp.Conn, destination string, payload any, opts ...func(*frame.Frame) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	if err := conn.Send(destination, "application/json", body, opts...); err != nil {
		return errors.Wrapf(err, "publish %s", destination)
	}
	observability.IncFrame("out", metricLabel(destination))
	return nil
}

func (c *Client) fail(cb Callbacks, err error) {
	c.setState(StateError)
	jww.WARN.Printf("transport error: %v", err)
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// within runs fn but gives up waiting after the receipt timeout.
func (c *Client) within(fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-c.cfg.Clock.After(c.cfg.ReceiptTimeout):
		return errors.New("timed out waiting for broker")
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	observability.SetTransportState(s.String())
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

// clockTimer drives backoff waits from the injected clock.
type clockTimer struct {
	clk clock.Clock
	t   *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.t != nil {
		t.t.Stop()
	}
	t.t = t.clk.Timer(d)
}

func (t *clockTimer) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.t.C
}
