// Package transcript keeps the ordered, de-duplicated message list of the
// active room. History pages replace or extend it from the old end, live
// messages land on the new end, and every message gets its day label once,
// on insertion.
package transcript

import (
	"errors"
	"sort"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/clock"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/google/uuid"
)

const DefaultPageSize = 20

var ErrNoMoreHistory = errors.New("transcript: no more history")

// Page is one window of history as returned by the server, newest first.
// Total is the number of messages the server holds for the room; a negative
// value means unknown.
type Page struct {
	Messages []models.Message
	Total    int
}

// Window is a limit/offset pagination window, offset counted from the
// newest message.
type Window struct {
	Limit  int
	Offset int
}

// Entry is one rendered row. ShowLabel is set on the first message of each
// calendar day, reading chronologically.
type Entry struct {
	models.Message
	ShowLabel bool `json:"showLabel"`
}

type entry struct {
	msg  models.Message
	seq  int64
	live bool
}

// Store is owned by a single goroutine and is not safe for concurrent use.
type Store struct {
	clock clock.Clock
	loc   *time.Location
	limit int

	entries []entry // newest first
	ids     map[models.ID]struct{}
	head    int64
	tail    int64
	total   int
	seeded  bool
}

func NewStore(c clock.Clock, loc *time.Location, pageSize int) *Store {
	if loc == nil {
		loc = time.Local
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		clock: c,
		loc:   loc,
		limit: pageSize,
		ids:   make(map[models.ID]struct{}),
		total: -1,
	}
}

// Label returns "Today", "Yesterday" or a formatted date for ts, with both
// instants read in loc.
func Label(ts, now time.Time, loc *time.Location) string {
	ts, now = ts.In(loc), now.In(loc)
	if sameDay(ts, now) {
		return "Today"
	}
	if sameDay(ts, now.AddDate(0, 0, -1)) {
		return "Yesterday"
	}
	return ts.Format("Jan 2, 2006")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Seed replaces the transcript with a freshly fetched first page. Live
// messages already received that are newer than everything in the page are
// kept, so a live frame that beat the history response is not lost.
func (s *Store) Seed(p Page) {
	var newest time.Time
	for _, m := range p.Messages {
		if m.Timestamp.After(newest) {
			newest = m.Timestamp
		}
	}
	pageIDs := make(map[models.ID]struct{}, len(p.Messages))
	for _, m := range p.Messages {
		if m.ID != "" {
			pageIDs[m.ID] = struct{}{}
		}
	}

	var retained []entry
	for _, e := range s.entries {
		if !e.live {
			continue
		}
		if _, dup := pageIDs[e.msg.ID]; dup && e.msg.ID != "" {
			continue
		}
		if len(p.Messages) == 0 || e.msg.Timestamp.After(newest) {
			retained = append(retained, e)
		}
	}

	s.entries = s.entries[:0]
	s.ids = make(map[models.ID]struct{}, len(p.Messages)+len(retained))
	s.head, s.tail = 0, 0

	for i := len(p.Messages) - 1; i >= 0; i-- {
		m := p.Messages[i]
		if s.Contains(m.ID) {
			continue
		}
		s.head++
		s.insert(m, s.head, false)
	}
	// retained is newest first; re-add oldest first to keep arrival order.
	for i := len(retained) - 1; i >= 0; i-- {
		s.head++
		s.insert(retained[i].msg, s.head, true)
	}
	// The server's count predates the retained live messages.
	s.total = p.Total
	if p.Total >= 0 {
		s.total += len(retained)
	}
	s.seeded = true
}

// AppendLive adds a message received on the live channel. It reports false
// when a message with the same id is already present.
func (s *Store) AppendLive(m models.Message) bool {
	if m.ID != "" {
		if _, ok := s.ids[m.ID]; ok {
			return false
		}
	}
	s.head++
	s.insert(m, s.head, true)
	if s.total >= 0 {
		s.total++
	}
	return true
}

// MergeOlder merges a page fetched at Cursor(). Messages already present are
// skipped; the number of new entries is returned.
func (s *Store) MergeOlder(p Page) int {
	added := 0
	for _, m := range p.Messages {
		if m.ID != "" {
			if _, ok := s.ids[m.ID]; ok {
				continue
			}
		}
		s.tail--
		s.insert(m, s.tail, false)
		added++
	}
	if p.Total >= 0 {
		s.total = p.Total
	}
	return added
}

func (s *Store) insert(m models.Message, seq int64, live bool) {
	if m.ID == "" && m.ProvisionalKey == "" {
		m.ProvisionalKey = uuid.NewString()
	}
	if m.DayLabel == "" {
		m.DayLabel = Label(m.Timestamp, s.clock.Now(), s.loc)
	}
	if m.ID != "" {
		s.ids[m.ID] = struct{}{}
	}
	e := entry{msg: m, seq: seq, live: live}
	i := sort.Search(len(s.entries), func(i int) bool { return newer(e, s.entries[i]) })
	s.entries = append(s.entries, entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

func newer(a, b entry) bool {
	if a.msg.Timestamp.Equal(b.msg.Timestamp) {
		return a.seq > b.seq
	}
	return a.msg.Timestamp.After(b.msg.Timestamp)
}

// Cursor returns the window for the next older page.
func (s *Store) Cursor() Window {
	return Window{Limit: s.limit, Offset: len(s.entries)}
}

// HasMore reports whether the server holds messages older than the loaded
// ones. Before the first seed it is false.
func (s *Store) HasMore() bool {
	if !s.seeded {
		return false
	}
	if s.total < 0 {
		return true
	}
	return len(s.entries) < s.total
}

func (s *Store) Seeded() bool { return s.seeded }

func (s *Store) Len() int { return len(s.entries) }

// Contains reports whether a message with id is present.
func (s *Store) Contains(id models.ID) bool {
	_, ok := s.ids[id]
	return ok
}

// View returns the newest-first transcript with day label flags.
func (s *Store) View() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = Entry{Message: e.msg}
		if i == len(s.entries)-1 || s.entries[i+1].msg.DayLabel != e.msg.DayLabel {
			out[i].ShowLabel = true
		}
	}
	return out
}
