// Package storage keeps a local copy of the most recent history page of
// each room, so reopening a room can render immediately while the first
// page is fetched again.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/storage/postgres"
	"github.com/ageniuscoder/mmchat/client/internal/storage/sqlite"
)

const openTimeout = 10 * time.Second

// DefaultRetention is how long cached messages are kept after they were sent.
const DefaultRetention = 30 * 24 * time.Hour

type Cache struct {
	db        *sql.DB
	postgres  bool
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// Open picks the driver from the DSN: postgres:// and postgresql:// use
// lib/pq, anything else is handed to SQLite. The schema is applied on open.
// Messages sent longer than retention ago are pruned on every Put; zero or
// less keeps everything.
func Open(dsn string, retention time.Duration, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "cache")

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		log.Info("cache opened", "driver", "postgres")
		return &Cache{db: db, postgres: true, retention: retention, now: time.Now, log: log}, nil
	}

	db, err := sqlite.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	log.Info("cache opened", "driver", "sqlite", "path", dsn)
	return &Cache{db: db, retention: retention, now: time.Now, log: log}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// rebind rewrites ? placeholders to $n for postgres.
func (c *Cache) rebind(q string) string {
	if !c.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put stores the messages of roomID that carry a server id. Messages without
// one are skipped: they could not be matched against a later fetch.
func (c *Cache) Put(ctx context.Context, roomID models.ID, msgs []models.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, c.rebind(`
		INSERT INTO cached_messages (room_id, message_id, sent_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room_id, message_id) DO UPDATE SET sent_at = excluded.sent_at, payload = excluded.payload`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	stored := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		// Labels depend on the day the transcript is rendered.
		m.DayLabel = ""
		m.ProvisionalKey = ""
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(roomID), string(m.ID), m.Timestamp.UnixNano(), string(payload)); err != nil {
			return fmt.Errorf("cache: put message %s: %w", m.ID, err)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Debug("cached messages", "room", roomID, "count", stored)

	if c.retention > 0 {
		n, err := c.Prune(ctx, roomID, c.now().Add(-c.retention))
		if err != nil {
			return fmt.Errorf("cache: prune room %s: %w", roomID, err)
		}
		if n > 0 {
			c.log.Debug("pruned cached messages", "room", roomID, "count", n)
		}
	}
	return nil
}

// Recent returns up to limit cached messages of roomID, newest first.
func (c *Cache) Recent(ctx context.Context, roomID models.ID, limit int) ([]models.Message, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(`
		SELECT payload FROM cached_messages
		WHERE room_id = ?
		ORDER BY sent_at DESC LIMIT ?`), string(roomID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var m models.Message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			c.log.Warn("dropping unreadable cache row", "room", roomID, "err", err)
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune deletes cached messages of roomID older than before.
func (c *Cache) Prune(ctx context.Context, roomID models.ID, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, c.rebind(`DELETE FROM cached_messages WHERE room_id = ? AND sent_at < ?`),
		string(roomID), before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
