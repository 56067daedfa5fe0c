package chat

import (
	"context"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/transcript"
)

// loadFirstPage renders the cached copy of the room, if any, then seeds the
// transcript from the server. Failures leave the transcript as it is.
func (m *Manager) loadFirstPage(gen uint64, roomID models.ID) {
	limit := m.opts.PageSize
	go func() {
		if m.opts.Cache != nil {
			cached, err := m.opts.Cache.Recent(m.ctx, roomID, limit)
			if err != nil {
				m.log.Warn("cache read failed", "room", roomID, "err", err)
			} else if len(cached) > 0 {
				m.post(func() { m.onCached(gen, cached) })
			}
		}

		page, err := m.opts.History.Fetch(m.ctx, roomID, transcript.Window{Limit: limit})
		m.post(func() { m.onFirstPage(gen, roomID, page, err) })
	}()
}

func (m *Manager) onCached(gen uint64, cached []models.Message) {
	if gen != m.roomGen || m.room.store.Seeded() {
		return
	}
	m.room.store.Seed(transcript.Page{Messages: cached, Total: -1})
	m.notify(UpdateTranscript, nil)
}

func (m *Manager) onFirstPage(gen uint64, roomID models.ID, page transcript.Page, err error) {
	if gen != m.roomGen {
		return
	}
	if err != nil {
		m.log.Warn("history fetch failed", "room", roomID, "err", err)
		m.notify(UpdateHistoryFailed, err)
		return
	}
	m.room.store.Seed(page)
	m.log.Debug("history seeded", "room", roomID, "entries", m.room.store.Len(), "total", page.Total)
	m.notify(UpdateTranscript, nil)
	m.cachePut(roomID, page.Messages)
}

// LoadOlderHistory fetches the page before the oldest loaded message and
// merges it. It blocks until the page is merged or the fetch fails; the
// loop keeps running meanwhile. There is no retry.
func (m *Manager) LoadOlderHistory(ctx context.Context) error {
	result := make(chan error, 1)
	err := m.withRoom(ctx, func(r *room) error {
		if !r.store.HasMore() {
			return transcript.ErrNoMoreHistory
		}
		if r.loading {
			return ErrLoadInProgress
		}
		r.loading = true
		gen, roomID, w := m.roomGen, r.id, r.store.Cursor()
		go func() {
			page, err := m.opts.History.Fetch(ctx, roomID, w)
			if !m.post(func() { m.onOlderPage(gen, roomID, page, err, result) }) {
				result <- ErrClosed
			}
		}()
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) onOlderPage(gen uint64, roomID models.ID, page transcript.Page, err error, result chan<- error) {
	if gen != m.roomGen {
		result <- ErrRoomChanged
		return
	}
	m.room.loading = false
	if err != nil {
		m.log.Warn("older history fetch failed", "room", roomID, "err", err)
		m.notify(UpdateHistoryFailed, err)
		result <- err
		return
	}
	added := m.room.store.MergeOlder(page)
	m.log.Debug("older history merged", "room", roomID, "added", added, "entries", m.room.store.Len())
	if added > 0 {
		m.notify(UpdateTranscript, nil)
	}
	m.cachePut(roomID, page.Messages)
	result <- nil
}

func (m *Manager) cachePut(roomID models.ID, msgs []models.Message) {
	if m.opts.Cache == nil || len(msgs) == 0 {
		return
	}
	cp := append([]models.Message(nil), msgs...)
	go func() {
		if err := m.opts.Cache.Put(m.ctx, roomID, cp); err != nil {
			m.log.Warn("cache write failed", "room", roomID, "err", err)
		}
	}()
}
