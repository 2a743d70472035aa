package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// signalConn is the signaling websocket to the media server.
type signalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func dialSignal(ctx context.Context, dialer *websocket.Dialer, url, token string, buffer int) (*signalConn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", token)
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &signalConn{conn: ws, send: make(chan []byte, buffer)}, nil
}

func (c *signalConn) TrySend(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued, sends a
// close frame and then closes the socket.
func (c *signalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *signalConn) writePump() {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "rtc.signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "rtc.signal").Msg("writePump write error")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// readPump delivers every inbound frame to handle and calls onDone once the socket dies.
func (c *signalConn) readPump(ctx context.Context, handle func([]byte), onDone func()) {
	defer func() {
		c.Close()
		if onDone != nil {
			onDone()
		}
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "rtc.signal").Msg("readPump read error")
			}
			return
		}
		handle(data)
	}
}
