package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindContact  Kind = "contact"
)

// ID is a server identifier. The chat server emits user, room and message
// ids either as JSON numbers or strings, so both decode to the same value.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Message struct {
	ID            ID              `json:"id,omitempty"`
	RoomID        ID              `json:"roomId"`
	UserID        ID              `json:"user"`
	UserName      string          `json:"userName"`
	UserImage     string          `json:"userImage,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Kind          Kind            `json:"message_type"`
	Text          string          `json:"message,omitempty"`
	MediaFile     string          `json:"media_file,omitempty"`
	MediaFileName string          `json:"media_file_name,omitempty"`
	ContactInfo   json.RawMessage `json:"contact_info,omitempty"`
	DayLabel      string          `json:"dateLabel"`

	// ProvisionalKey is set for entries that have no server id yet.
	ProvisionalKey string `json:"key,omitempty"`
}

// Key returns the identity used for rendering: the server id when present,
// otherwise the provisional key.
func (m Message) Key() string {
	if m.ID != "" {
		return string(m.ID)
	}
	return m.ProvisionalKey
}

// KindForMIME maps a declared MIME type to the message kind sent for an
// attachment.
func KindForMIME(mime string) Kind {
	if len(mime) >= 6 && mime[:6] == "image/" {
		return KindImage
	}
	return KindDocument
}
