package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 1 << 20
	frameBuffer             = 256
)

// ErrClosed is returned by writes on a closed connection.
var ErrClosed = errors.New("stream: connection closed")

// Conn is an upstream live socket. A single reader goroutine pushes frames
// onto Frames in arrival order; the channel is closed when the socket ends,
// after which Err reports why.
type Conn struct {
	ws *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	frames chan []byte
	done   chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// DialOptions tunes Dial.
type DialOptions struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

// Dial opens a socket to rawURL. Credentials in the URL userinfo are sent as
// HTTP Basic auth on the handshake and stripped from the request URL.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if u.User != nil {
		req := http.Request{Header: header}
		pass, _ := u.User.Password()
		req.SetBasicAuth(u.User.Username(), pass)
		u.User = nil
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: orDefault(opts.HandshakeTimeout, defaultHandshakeTimeout),
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	ws.SetReadLimit(limit)

	c := &Conn{
		ws:           ws,
		writeTimeout: orDefault(opts.WriteTimeout, defaultWriteTimeout),
		frames:       make(chan []byte, frameBuffer),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

// Frames yields inbound messages in arrival order.
func (c *Conn) Frames() <-chan []byte { return c.frames }

// Err returns the error that ended the read loop; nil while it runs.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// WriteJSON encodes v and writes it as one text frame.
func (c *Conn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.write(websocket.TextMessage, b)
}

func (c *Conn) write(kind int, b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.Err() != nil {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(kind, b); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a normal-closure frame and releases the socket. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure})
		err = c.ws.Close()
	})
	return err
}

// IsNormalClosure reports whether err is a close with code 1000.
func IsNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
