package chat

import (
	"context"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/transcript"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type UpdateKind string

const (
	UpdateTranscript    UpdateKind = "transcript"
	UpdateTyping        UpdateKind = "typing"
	UpdatePresence      UpdateKind = "presence"
	UpdateConnection    UpdateKind = "connection"
	UpdateDraft         UpdateKind = "draft"
	UpdateHistoryFailed UpdateKind = "history_failed"
	UpdateSendFailed    UpdateKind = "send_failed"
)

const updateBuffer = 64

// Update tells the UI that some part of the view changed. Err is set for
// failures and for connection drops.
type Update struct {
	Kind   UpdateKind `json:"kind"`
	RoomID models.ID  `json:"roomId,omitempty"`
	State  State      `json:"state"`
	Err    error      `json:"-"`
}

// Updates is the change feed. The loop never blocks on it: when the reader
// lags, updates are dropped and the reader should re-read Snapshot.
func (m *Manager) Updates() <-chan Update {
	return m.updates
}

func (m *Manager) notify(kind UpdateKind, err error) {
	u := Update{Kind: kind, State: m.state, Err: err}
	if m.room != nil {
		u.RoomID = m.room.id
	}
	select {
	case m.updates <- u:
	default:
		m.log.Warn("update dropped, reader is behind", "kind", kind)
	}
}

type Draft struct {
	Text     string `json:"text"`
	FileName string `json:"fileName,omitempty"`
}

// View is what the UI renders for the active room.
type View struct {
	State      State              `json:"state"`
	RoomID     models.ID          `json:"roomId,omitempty"`
	Transcript []transcript.Entry `json:"transcript"`
	HasMore    bool               `json:"hasMore"`
	Typing     Typing             `json:"typing"`
	Draft      Draft              `json:"draft"`
	Online     []models.ID        `json:"online"`
}

func (m *Manager) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := m.do(ctx, func() {
		v.State = m.state
		v.Online = m.presence.Online()
		r := m.room
		if r == nil {
			v.Transcript = []transcript.Entry{}
			return
		}
		v.RoomID = r.id
		v.Transcript = r.store.View()
		v.HasMore = r.store.HasMore()
		v.Typing = r.typing
		v.Draft.Text = r.input
		if r.file != nil {
			v.Draft.FileName = r.file.Name()
		}
	})
	return v, err
}
