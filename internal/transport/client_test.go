package transport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-chat/internal/models"
)

const waitFor = 3 * time.Second

func startBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = l.Close() })
	return l.Addr().String()
}

func observe(t *testing.T, addr, destination string) <-chan *stomp.Message {
	t.Helper()
	conn, err := stomp.Dial("tcp", addr)
	require.NoError(t, err)
	sub, err := conn.Subscribe(destination, stomp.AckAuto)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.MustDisconnect() })
	return sub.C
}

func nextPresence(t *testing.T, ch <-chan *stomp.Message) models.Presence {
	t.Helper()
	select {
	case msg := <-ch:
		require.NotNil(t, msg)
		require.NoError(t, msg.Err)
		var p models.Presence
		require.NoError(t, json.Unmarshal(msg.Body, &p))
		return p
	case <-time.After(waitFor):
		t.Fatalf("no presence frame received")
		return models.Presence{}
	}
}

func newTestClient(t *testing.T, addr string, dial Dialer) *Client {
	t.Helper()
	if dial == nil {
		dial = TCPDialer(addr)
	}
	c, err := NewClient(Config{
		URL:            "tcp://" + addr,
		ReconnectDelay: 20 * time.Millisecond,
		Dial:           dial,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func connected(t *testing.T, c *Client, userID string) {
	t.Helper()
	ready := make(chan struct{}, 1)
	require.NoError(t, c.Connect(userID, Callbacks{
		OnConnected: func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
	}))
	select {
	case <-ready:
	case <-time.After(waitFor):
		t.Fatalf("client did not connect")
	}
}

func TestClientAnnouncesPresenceAndDispatchesFrames(t *testing.T) {
	addr := startBroker(t)
	status := observe(t, addr, DestStatus)
	c := newTestClient(t, addr, nil)

	received := make(chan []byte, 1)
	require.NoError(t, c.Subscribe(MessageQueue("u1"), func(body []byte) { received <- body }))
	connected(t, c, "u1")

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, models.Presence{UserID: "u1", Status: models.PresenceOnline}, nextPresence(t, status))

	sender, err := stomp.Dial("tcp", addr)
	require.NoError(t, err)
	defer sender.MustDisconnect()
	require.NoError(t, sender.Send(MessageQueue("u1"), "application/json", []byte(`{"id":"m1","senderId":"u2","content":"hi"}`)))

	select {
	case body := <-received:
		assert.JSONEq(t, `{"id":"m1","senderId":"u2","content":"hi"}`, string(body))
	case <-time.After(waitFor):
		t.Fatalf("inbound frame not dispatched")
	}
}

func TestClientPublishDeliversJSON(t *testing.T) {
	addr := startBroker(t)
	typing := observe(t, addr, DestTyping)
	c := newTestClient(t, addr, nil)
	connected(t, c, "u1")

	require.NoError(t, c.Publish(DestTyping, models.Typing{SenderID: "u1", RecipientID: "u2", Typing: true}))

	select {
	case msg := <-typing:
		require.NoError(t, msg.Err)
		assert.JSONEq(t, `{"senderId":"u1","recipientId":"u2","typing":true}`, string(msg.Body))
	case <-time.After(waitFor):
		t.Fatalf("typing frame not received")
	}
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	c, err := NewClient(Config{URL: "tcp://127.0.0.1:1"})
	require.NoError(t, err)

	err = c.Publish(DestChat, models.OutgoingMessage{Content: "hello"})
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.IsConnected())
}

func TestClientConnectIdentityGuard(t *testing.T) {
	addr := startBroker(t)
	c := newTestClient(t, addr, nil)

	require.ErrorIs(t, c.Connect("", Callbacks{}), ErrEmptyUser)
	connected(t, c, "u1")

	require.NoError(t, c.Connect("u1", Callbacks{}))
	require.ErrorIs(t, c.Connect("u2", Callbacks{}), ErrAlreadyConnected)

	require.NoError(t, c.Disconnect())
	connected(t, c, "u2")
	assert.Equal(t, "u2", c.UserID())
}

func TestClientDisconnectSendsOfflineOnce(t *testing.T) {
	addr := startBroker(t)
	status := observe(t, addr, DestStatus)
	c := newTestClient(t, addr, nil)
	connected(t, c, "u1")
	require.Equal(t, models.PresenceOnline, nextPresence(t, status).Status)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())

	assert.Equal(t, models.Presence{UserID: "u1", Status: models.PresenceOffline}, nextPresence(t, status))
	assert.Equal(t, StateDisconnected, c.State())
	require.ErrorIs(t, c.Publish(DestStatus, models.Presence{}), ErrNotConnected)

	select {
	case msg := <-status:
		t.Fatalf("unexpected extra presence frame: %s", msg.Body)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientRetriesUntilBrokerReachable(t *testing.T) {
	addr := startBroker(t)
	var attempts int32
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			return nil, errors.New("connection refused")
		}
		return TCPDialer(addr)(ctx)
	}
	c := newTestClient(t, addr, dial)

	var mu sync.Mutex
	var failures []error
	ready := make(chan struct{}, 1)
	require.NoError(t, c.Connect("u1", Callbacks{
		OnConnected: func() { ready <- struct{}{} },
		OnError: func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		},
	}))

	select {
	case <-ready:
	case <-time.After(waitFor):
		t.Fatalf("client never connected")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, failures, 2)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestClientReconnectsAfterConnectionLoss(t *testing.T) {
	addr := startBroker(t)
	conns := make(chan net.Conn, 4)
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conns <- conn
		}
		return conn, err
	}
	c := newTestClient(t, addr, dial)
	require.NoError(t, c.Subscribe(TopicStatus, func([]byte) {}))

	ready := make(chan struct{}, 4)
	lost := make(chan error, 4)
	require.NoError(t, c.Connect("u1", Callbacks{
		OnConnected: func() { ready <- struct{}{} },
		OnError:     func(err error) { lost <- err },
	}))

	<-ready
	first := <-conns
	require.NoError(t, first.Close())

	select {
	case err := <-lost:
		assert.Error(t, err)
	case <-time.After(waitFor):
		t.Fatalf("connection loss not reported")
	}
	select {
	case <-ready:
	case <-time.After(waitFor):
		t.Fatalf("client did not reconnect")
	}
	assert.True(t, c.IsConnected())
}

func TestClientResubscribeReplacesHandler(t *testing.T) {
	addr := startBroker(t)
	c := newTestClient(t, addr, nil)

	var stale int32
	require.NoError(t, c.Subscribe(TopicStatus, func([]byte) { atomic.AddInt32(&stale, 1) }))
	connected(t, c, "u1")

	received := make(chan []byte, 4)
	require.NoError(t, c.Subscribe(TopicStatus, func(body []byte) { received <- body }))

	sender, err := stomp.Dial("tcp", addr)
	require.NoError(t, err)
	defer sender.MustDisconnect()

	for _, body := range []string{`{"userId":"u2","status":"AWAY"}`, `{"userId":"u3","status":"ONLINE"}`} {
		require.NoError(t, sender.Send(TopicStatus, "application/json", []byte(body)))
		select {
		case got := <-received:
			assert.JSONEq(t, body, string(got))
		case <-time.After(waitFor):
			t.Fatalf("status frame not dispatched")
		}
	}
	select {
	case extra := <-received:
		t.Fatalf("frame dispatched twice: %s", extra)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Zero(t, atomic.LoadInt32(&stale))
}

func TestMetricLabelStripsUserID(t *testing.T) {
	assert.Equal(t, "/user/queue/messages", metricLabel(MessageQueue("abc123")))
	assert.Equal(t, "/user/queue/read", metricLabel(ReadQueue("abc123")))
	assert.Equal(t, TopicStatus, metricLabel(TopicStatus))
}
