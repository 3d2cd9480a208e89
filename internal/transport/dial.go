package transport

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Dialer opens the byte stream STOMP frames are exchanged over.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// NewDialer picks a dialer for the broker URL: ws/wss dial a websocket
// endpoint, tcp/stomp dial a plain STOMP listener.
func NewDialer(rawURL string) (Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse broker url")
	}
	switch u.Scheme {
	case "ws", "wss":
		return WebSocketDialer(rawURL), nil
	case "tcp", "stomp":
		if u.Host == "" {
			return nil, errors.Errorf("broker url %q has no host", rawURL)
		}
		return TCPDialer(u.Host), nil
	default:
		return nil, errors.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// TCPDialer dials a STOMP broker over plain TCP.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// WebSocketDialer dials a STOMP-over-websocket endpoint.
func WebSocketDialer(rawURL string) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		}
		ws, _, err := d.DialContext(ctx, rawURL, nil)
		if err != nil {
			return nil, err
		}
		return newWSStream(ws), nil
	}
}

// wsStream presents a websocket as a byte stream. Every Write is sent as one
// text message; reads run across message boundaries.
type wsStream struct {
	ws *websocket.Conn
	r  io.Reader

	wmu sync.Mutex
}

func newWSStream(ws *websocket.Conn) *wsStream {
	return &wsStream{ws: ws}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				return 0, err
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.wmu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.wmu.Unlock()
	return s.ws.Close()
}
