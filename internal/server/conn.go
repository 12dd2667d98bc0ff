package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"seminarhub/pkg/protocol"
)

// Conn wraps a websocket with a single writer goroutine so that responses and
// roster broadcasts from different goroutines never interleave on the wire.
type Conn struct {
	ws           *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	writerDone   chan struct{}
	closeOnce    sync.Once
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:           ws,
		writeCh:      make(chan []byte, 32),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		writerDone:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case data := <-c.writeCh:
			if !c.write(data) {
				return
			}
		case <-c.ctx.Done():
			// Flush responses queued before the close so the peer sees the
			// final envelope, then exit.
			for {
				select {
				case data := <-c.writeCh:
					if !c.write(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) write(data []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return false
	}
	return c.ws.WriteMessage(websocket.TextMessage, data) == nil
}

// Send queues a response envelope for the writer goroutine.
func (c *Conn) Send(resp *protocol.Response) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close flushes pending writes and releases the socket; safe to call more than
// once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.writerDone
		err = c.ws.Close()
	})
	return err
}
