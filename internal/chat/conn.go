package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

var errSendBufferFull = errors.New("chat: send buffer full")

// Conn is one live connection. Inbound frames and the drop notification are
// handed to the owning loop through ops; nothing is delivered once Close has
// started.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	log  *slog.Logger

	ops  chan<- func()
	quit <-chan struct{}

	onFrame func(c *Conn, data []byte)
	onDrop  func(c *Conn, err error)

	closed    chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
	writeDone chan struct{}
}

func newConn(ws *websocket.Conn, ops chan<- func(), quit <-chan struct{}, log *slog.Logger) *Conn {
	return &Conn{
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		log:       log,
		ops:       ops,
		quit:      quit,
		closed:    make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
	}
}

func (c *Conn) start() {
	go c.writePump()
	go c.readPump()
}

// emit hands fn to the owning loop unless the connection is closing.
func (c *Conn) emit(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.closed:
	case <-c.quit:
	}
}

func (c *Conn) readPump() {
	defer close(c.readDone)
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Warn("connection dropped", "err", err)
				}
				c.emit(func() { c.onDrop(c, err) })
			}
			return
		}
		c.emit(func() { c.onFrame(c, msg) })
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writeDone)
	}()
	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send queues a frame for the write pump. There is no delivery
// acknowledgement: a frame queued on a connection that then drops is lost.
func (c *Conn) Send(b []byte) error {
	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops both pumps and returns once they have exited, so no frame
// from this connection reaches the loop afterwards.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		<-c.writeDone
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.ws.Close()
		<-c.readDone
	})
}
