package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrSlowConsumer = errors.New("client send buffer full")
)

// Conn is the part of a websocket connection a Client uses.
// *websocket.Conn from gofiber/contrib satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type pongHandlerSetter interface {
	SetPongHandler(h func(appData string) error)
}

// ClientOptions tunes a session's buffering and deadlines.
type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	// IdleTimeout is the read deadline; zero means reads never time out.
	IdleTimeout time.Duration
}

// Client represents one authenticated WebSocket session.
type Client struct {
	ID     string
	UserID int64

	conn Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	opts      ClientOptions
}

// NewClient creates a session for userID over conn.
func NewClient(userID int64, conn Conn, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		opts:   opts,
	}
}

// Done is closed once the session has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the session. Safe to call more than once and from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			log.Debugw("close connection", "session", c.ID, "error", err)
		}
	})
}

// Send encodes frame and queues it for the write pump.
func (c *Client) Send(frame OutboundFrame) error {
	data, err := Encode(frame)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue never blocks. A full buffer means the peer is not keeping up, so
// the session is closed rather than stalling the caller.
func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		log.Warnw("send buffer full, closing session", "user_id", c.UserID, "session", c.ID)
		c.Close()
		return ErrSlowConsumer
	}
}

// ReadPump reads frames until the connection fails and hands each one to
// handle. Frames are handled one at a time, in arrival order.
func (c *Client) ReadPump(handle func(data []byte)) {
	defer c.Close()

	if setter, ok := c.conn.(pongHandlerSetter); ok && c.opts.IdleTimeout > 0 {
		setter.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		})
	}

	for {
		if c.opts.IdleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Infow("websocket read error", "user_id", c.UserID, "session", c.ID, "error", err)
				}
			}
			return
		}

		handle(data)
	}
}

// WritePump drains the send queue to the connection until the session is
// closed. A write that misses its deadline closes the session.
func (c *Client) WritePump() {
	defer c.Close()

	var ping <-chan time.Time
	if c.opts.IdleTimeout > 0 {
		ticker := time.NewTicker(c.opts.IdleTimeout * 9 / 10)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Infow("websocket write error", "user_id", c.UserID, "session", c.ID, "error", err)
				return
			}

		case <-ping:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
