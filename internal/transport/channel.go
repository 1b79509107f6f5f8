// Package transport owns the websocket connection to the game server. It
// delivers decoded inbound messages on a single channel in arrival order
// and handles low-level redialing itself; consumers only ever see
// Connected/Disconnected status messages.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/psychgame/client/internal/protocol"
)

var ErrNotConnected = errors.New("transport: not connected")

const (
	writeTimeout   = 3 * time.Second
	minRedialDelay = 500 * time.Millisecond
	maxRedialDelay = 10 * time.Second
)

// Channel is the narrow interface the client loop depends on. The concrete
// websocket implementation is injected once at startup; nothing holds an
// ambient global connection.
type Channel interface {
	// Send encodes and writes one intent. Fire-and-forget: the only reply
	// the server ever gives is a later inbound push.
	Send(ctx context.Context, msg protocol.Outbound) error
	// Events delivers inbound messages in arrival order. The channel is
	// closed when the transport shuts down.
	Events() <-chan protocol.Inbound
	Close() error
}

// WSChannel is the production Channel over a websocket connection.
type WSChannel struct {
	url    string
	log    zerolog.Logger
	events chan protocol.Inbound

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the server and starts the read pump. The initial dial is
// synchronous so a bad URL fails fast; later drops are redialed internally
// with backoff.
func Dial(parent context.Context, url string, log zerolog.Logger) (*WSChannel, error) {
	ctx, cancel := context.WithCancel(parent)

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	c := &WSChannel{
		url:    url,
		log:    log,
		events: make(chan protocol.Inbound, 32),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		conn:   conn,
	}
	go c.run()
	return c, nil
}

func (c *WSChannel) Events() <-chan protocol.Inbound { return c.events }

func (c *WSChannel) Send(ctx context.Context, msg protocol.Outbound) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.EncodeOutbound(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *WSChannel) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
	<-c.done
	return nil
}

// run owns the connection lifecycle: read until the connection drops, then
// redial with backoff until the context is cancelled.
func (c *WSChannel) run() {
	defer close(c.done)
	defer close(c.events)

	c.emit(protocol.Connected{})
	for {
		c.readLoop()
		if c.ctx.Err() != nil {
			return
		}
		c.emit(protocol.Disconnected{})
		if !c.redial() {
			return
		}
		c.emit(protocol.Connected{})
	}
}

func (c *WSChannel) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if c.ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("websocket read failed")
				}
			}
			return
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			// Unknown or malformed events are logged and skipped; the
			// state layer absorbs partial payloads, the transport only
			// drops frames it cannot even name.
			c.log.Warn().Err(err).Msg("dropping inbound frame")
			continue
		}
		c.emit(msg)
	}
}

func (c *WSChannel) redial() bool {
	delay := minRedialDelay
	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, _, err := websocket.Dial(c.ctx, c.url, nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			return true
		}
		if c.ctx.Err() != nil {
			return false
		}
		c.log.Debug().Err(err).Dur("retry_in", delay).Msg("redial failed")
		delay = min(delay*2, maxRedialDelay)
	}
}

func (c *WSChannel) emit(msg protocol.Inbound) {
	select {
	case c.events <- msg:
	case <-c.ctx.Done():
	}
}
