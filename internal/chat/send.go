package chat

import (
	"context"

	"github.com/ageniuscoder/mmchat/client/internal/media"
	"github.com/ageniuscoder/mmchat/client/internal/models"
)

// SetInput replaces the composer text.
func (m *Manager) SetInput(ctx context.Context, text string) error {
	return m.withRoom(ctx, func(r *room) error {
		r.input = text
		m.notify(UpdateDraft, nil)
		return nil
	})
}

// SelectFile attaches f to the composer; nil clears the selection.
func (m *Manager) SelectFile(ctx context.Context, f media.File) error {
	return m.withRoom(ctx, func(r *room) error {
		r.file = f
		m.notify(UpdateDraft, nil)
		return nil
	})
}

// SendText sets the composer text and submits.
func (m *Manager) SendText(ctx context.Context, text string) error {
	return m.withRoom(ctx, func(r *room) error {
		r.input = text
		return m.submit(r)
	})
}

// SendFile attaches f and submits. Text already in the composer travels in
// the same frame.
func (m *Manager) SendFile(ctx context.Context, f media.File) error {
	return m.withRoom(ctx, func(r *room) error {
		r.file = f
		return m.submit(r)
	})
}

// Submit sends the composer content. The composer is cleared whatever the
// outcome. A text-only send returns the write error, if any. An attachment
// is encoded off the loop and its frame written once encoding completes;
// failures are reported as UpdateSendFailed.
func (m *Manager) Submit(ctx context.Context) error {
	return m.withRoom(ctx, m.submit)
}

func (m *Manager) submit(r *room) error {
	text, file := r.input, r.file
	r.input, r.file = "", nil
	m.notify(UpdateDraft, nil)

	if text == "" && file == nil {
		return nil
	}

	f := newMessageFrame(m.opts.Session.UserID, r.id, m.opts.Clock.Now())
	if text != "" {
		f.Message = &text
		f.MessageType = string(models.KindText)
	}
	if file == nil {
		return m.write(f)
	}

	gen := m.roomGen
	results := m.opts.Encoder.Encode(m.ctx, file)
	go func() {
		res := <-results
		m.post(func() { m.finishAttachment(gen, f, res) })
	}()
	return nil
}

func (m *Manager) finishAttachment(gen uint64, f Frame, res media.Result) {
	if res.Err != nil {
		m.log.Warn("attachment not sent", "room", f.RoomID, "file", res.Name, "err", res.Err)
		m.notify(UpdateSendFailed, res.Err)
		return
	}
	if gen != m.roomGen {
		m.log.Info("attachment dropped, room changed", "room", f.RoomID, "file", res.Name)
		return
	}
	f.MediaFile = &res.DataURL
	f.MediaFileName = &res.Name
	f.MessageType = string(res.Kind)
	if err := m.write(f); err != nil {
		m.notify(UpdateSendFailed, err)
	}
}
