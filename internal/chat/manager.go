// Package chat owns the live connection of the active room. A single loop
// goroutine holds all room state: inbound frames, history results, typing
// timers and the public operations are all funnelled into it as closures.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/clock"
	"github.com/ageniuscoder/mmchat/client/internal/media"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/presence"
	"github.com/ageniuscoder/mmchat/client/internal/transcript"
	"github.com/ageniuscoder/mmchat/client/internal/typing"
	"github.com/gorilla/websocket"
)

var (
	ErrNoActiveRoom   = errors.New("chat: no active room")
	ErrNotConnected   = errors.New("chat: not connected")
	ErrClosed         = errors.New("chat: manager closed")
	ErrRoomChanged    = errors.New("chat: room changed while loading")
	ErrLoadInProgress = errors.New("chat: older history already loading")
)

// HistorySource is the REST collaborator serving transcript pages.
type HistorySource interface {
	Fetch(ctx context.Context, roomID models.ID, w transcript.Window) (transcript.Page, error)
}

// TranscriptCache stores recently seen history locally. Optional.
type TranscriptCache interface {
	Put(ctx context.Context, roomID models.ID, msgs []models.Message) error
	Recent(ctx context.Context, roomID models.ID, limit int) ([]models.Message, error)
}

type Options struct {
	Session   auth.Session
	WSBaseURL string
	// MediaBase resolves relative avatar and media paths in live frames.
	MediaBase   *url.URL
	History     HistorySource
	Cache       TranscriptCache
	Dialer      Dialer
	Encoder     *media.Encoder
	Presence    *presence.Tracker
	Clock       clock.Clock
	Location    *time.Location
	PageSize    int
	TypingQuiet time.Duration
	Log         *slog.Logger
}

type Typing struct {
	Active bool      `json:"active"`
	UserID models.ID `json:"userId,omitempty"`
}

type room struct {
	id      models.ID
	store   *transcript.Store
	typing  Typing
	typist  *typing.Controller
	input   string
	file    media.File
	loading bool
}

type Manager struct {
	opts     Options
	log      *slog.Logger
	presence *presence.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	updates   chan Update

	// Owned by run.
	room    *room
	conn    *Conn
	state   State
	roomGen uint64
	connGen uint64
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PageSize <= 0 {
		opts.PageSize = transcript.DefaultPageSize
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = typing.DefaultQuietPeriod
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Encoder == nil {
		opts.Encoder = media.NewEncoder(opts.Log)
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewTracker()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		log:      opts.Log.With("component", "chat", "user", opts.Session.UserID),
		presence: opts.Presence,
		ctx:      ctx,
		cancel:   cancel,
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		updates:  make(chan Update, updateBuffer),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.done)
	m.log.Info("sync loop started")
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.quit:
			m.deactivate()
			m.log.Info("sync loop stopped")
			return
		}
	}
}

// Close tears down the active room and stops the loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		close(m.quit)
	})
	<-m.done
}

func (m *Manager) post(fn func()) bool {
	select {
	case m.ops <- fn:
		return true
	case <-m.quit:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (m *Manager) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ok := m.post(func() {
		defer close(finished)
		fn()
	})
	if !ok {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActivateRoom makes roomID the active room. Any previous room is torn down
// first: its typing timer is cancelled and its connection closed before the
// new connection is dialed. History fetch and dial then run concurrently.
func (m *Manager) ActivateRoom(ctx context.Context, roomID models.ID) error {
	return m.do(ctx, func() {
		m.deactivate()
		m.roomGen++
		r := &room{
			id:    roomID,
			store: transcript.NewStore(m.opts.Clock, m.opts.Location, m.opts.PageSize),
		}
		r.typist = typing.New(m.opts.Clock, m.opts.TypingQuiet,
			func(on bool) { m.sendTyping(r.id, on) },
			func(f func()) { m.post(f) })
		m.room = r
		m.log.Info("room activated", "room", roomID)
		m.notify(UpdateTranscript, nil)

		m.loadFirstPage(m.roomGen, roomID)
		m.connect()
	})
}

// DeactivateRoom tears down the active room, if any.
func (m *Manager) DeactivateRoom(ctx context.Context) error {
	return m.do(ctx, func() {
		if m.room == nil {
			return
		}
		id := m.room.id
		m.deactivate()
		m.log.Info("room deactivated", "room", id)
		m.notify(UpdateConnection, nil)
	})
}

// Reconnect attaches a fresh connection to the active room. The transcript
// is kept; messages seen again are de-duplicated by id.
func (m *Manager) Reconnect(ctx context.Context) error {
	var err error
	if doErr := m.do(ctx, func() {
		if m.room == nil {
			err = ErrNoActiveRoom
			return
		}
		m.dropConn()
		m.connect()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (m *Manager) deactivate() {
	if m.room != nil {
		m.room.typist.Stop()
		m.room = nil
	}
	m.roomGen++
	m.dropConn()
}

func (m *Manager) dropConn() {
	m.connGen++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
}

func (m *Manager) connect() {
	m.connGen++
	gen := m.connGen
	m.state = StateConnecting
	m.notify(UpdateConnection, nil)

	endpoint := Endpoint(m.opts.WSBaseURL, m.opts.Session.UserID)
	go func() {
		ws, err := dial(m.ctx, m.opts.Dialer, endpoint, m.opts.Session.Token)
		if !m.post(func() { m.onDialed(gen, ws, err) }) && ws != nil {
			ws.Close()
		}
	}()
}

func (m *Manager) onDialed(gen uint64, ws *websocket.Conn, err error) {
	if gen != m.connGen || m.room == nil {
		if ws != nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		m.log.Warn("connect failed", "room", m.room.id, "err", err)
		m.state = StateDisconnected
		m.notify(UpdateConnection, err)
		return
	}
	c := newConn(ws, m.ops, m.quit, m.log)
	c.onFrame = m.onFrame
	c.onDrop = m.onDrop
	m.conn = c
	m.state = StateConnected
	c.start()
	m.log.Info("connected", "room", m.room.id)
	m.notify(UpdateConnection, nil)
}

func (m *Manager) onDrop(c *Conn, err error) {
	if c != m.conn {
		return
	}
	c.Close()
	m.conn = nil
	m.state = StateDisconnected
	m.notify(UpdateConnection, err)
}

func (m *Manager) onFrame(c *Conn, data []byte) {
	if c != m.conn {
		return
	}
	ev, err := Decode(data, m.opts.MediaBase)
	if err != nil {
		m.log.Debug("dropping frame", "err", err)
		return
	}

	switch e := ev.(type) {
	case PresenceEvent:
		m.presence.Replace(e.UserIDs)
		m.notify(UpdatePresence, nil)

	case MessageEvent:
		r := m.room
		if r == nil || e.Message.RoomID != r.id {
			return
		}
		if r.store.AppendLive(e.Message) {
			m.notify(UpdateTranscript, nil)
			if e.Message.ID != "" {
				m.cachePut(r.id, []models.Message{e.Message})
			}
		}
		if r.typing.Active {
			r.typing = Typing{}
			m.notify(UpdateTyping, nil)
		}

	case TypingEvent:
		r := m.room
		if r == nil || e.RoomID != r.id || e.UserID == m.opts.Session.UserID {
			return
		}
		r.typing = Typing{Active: e.Typing}
		if e.Typing {
			r.typing.UserID = e.UserID
		}
		m.notify(UpdateTyping, nil)

	case UnknownEvent:
		m.log.Debug("ignoring frame", "action", e.Action, "room", e.RoomID)
	}
}

func (m *Manager) write(f Frame) error {
	if m.conn == nil {
		m.log.Warn("frame dropped, not connected", "action", f.Action, "room", f.RoomID)
		return ErrNotConnected
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return m.conn.Send(b)
}

func (m *Manager) sendTyping(roomID models.ID, on bool) {
	if err := m.write(newTypingFrame(m.opts.Session.UserID, roomID, on, m.opts.Clock.Now())); err != nil {
		m.log.Debug("typing signal not sent", "typing", on, "err", err)
	}
}

// NotifyKeystroke reports a key press other than the commit key.
func (m *Manager) NotifyKeystroke(ctx context.Context) error {
	return m.withRoom(ctx, func(r *room) error {
		r.typist.Keystroke()
		return nil
	})
}

// NotifyCommit reports the commit key.
func (m *Manager) NotifyCommit(ctx context.Context) error {
	return m.withRoom(ctx, func(r *room) error {
		r.typist.Commit()
		return nil
	})
}

func (m *Manager) withRoom(ctx context.Context, fn func(r *room) error) error {
	var err error
	if doErr := m.do(ctx, func() {
		if m.room == nil {
			err = ErrNoActiveRoom
			return
		}
		err = fn(m.room)
	}); doErr != nil {
		return doErr
	}
	return err
}

// IsOnline reports whether userID is in the latest presence snapshot.
func (m *Manager) IsOnline(userID models.ID) bool {
	return m.presence.IsOnline(userID)
}

// Online returns the latest presence snapshot.
func (m *Manager) Online() []models.ID {
	return m.presence.Online()
}
