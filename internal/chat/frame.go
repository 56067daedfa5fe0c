package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/utils"
)

const (
	ActionMessage    = "message"
	ActionTyping     = "typing"
	ActionOnlineUser = "onlineUser"
)

var ErrMalformedFrame = errors.New("chat: malformed frame")

// Frame is the JSON object exchanged over the live connection. Pointer
// fields distinguish "absent" from the zero value.
type Frame struct {
	Action        string          `json:"action,omitempty"`
	RoomID        models.ID       `json:"roomId,omitempty"`
	User          models.ID       `json:"user,omitempty"`
	Timestamp     string          `json:"timestamp,omitempty"`
	ID            models.ID       `json:"id,omitempty"`
	Message       *string         `json:"message,omitempty"`
	MessageType   string          `json:"message_type,omitempty"`
	MediaFile     *string         `json:"media_file,omitempty"`
	MediaFileName *string         `json:"media_file_name,omitempty"`
	ContactInfo   json.RawMessage `json:"contact_info,omitempty"`
	UserImage     *string         `json:"userImage,omitempty"`
	UserName      string          `json:"userName,omitempty"`
	Typing        *bool           `json:"typing,omitempty"`
	UserList      []models.ID     `json:"userList,omitempty"`

	// Error is set by the server when it could not store a message.
	Error string `json:"error,omitempty"`
}

// Event is one decoded inbound frame.
type Event interface {
	isEvent()
}

type MessageEvent struct {
	Message models.Message
}

type TypingEvent struct {
	RoomID models.ID
	UserID models.ID
	Typing bool
}

// PresenceEvent carries the full set of online users. It is not scoped to
// a room.
type PresenceEvent struct {
	UserIDs []models.ID
}

// UnknownEvent is a well-formed frame with an action this client does not
// handle.
type UnknownEvent struct {
	Action string
	RoomID models.ID
}

func (MessageEvent) isEvent()  {}
func (TypingEvent) isEvent()   {}
func (PresenceEvent) isEvent() {}
func (UnknownEvent) isEvent()  {}

// Decode classifies a raw frame. Relative avatar and media references are
// resolved against base.
func Decode(data []byte, base *url.URL) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Action == "" {
		if f.Error != "" {
			return nil, fmt.Errorf("%w: server error %q", ErrMalformedFrame, f.Error)
		}
		return nil, fmt.Errorf("%w: missing action", ErrMalformedFrame)
	}

	switch f.Action {
	case ActionOnlineUser:
		return PresenceEvent{UserIDs: f.UserList}, nil

	case ActionTyping:
		if f.RoomID == "" || f.User == "" || f.Typing == nil {
			return nil, fmt.Errorf("%w: typing frame missing fields", ErrMalformedFrame)
		}
		return TypingEvent{RoomID: f.RoomID, UserID: f.User, Typing: *f.Typing}, nil

	case ActionMessage:
		if f.RoomID == "" || f.Timestamp == "" {
			return nil, fmt.Errorf("%w: message frame missing fields", ErrMalformedFrame)
		}
		ts, err := utils.ParseTime(f.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return MessageEvent{Message: f.toMessage(ts, base)}, nil
	}
	return UnknownEvent{Action: f.Action, RoomID: f.RoomID}, nil
}

func (f Frame) toMessage(ts time.Time, base *url.URL) models.Message {
	m := models.Message{
		ID:          f.ID,
		RoomID:      f.RoomID,
		UserID:      f.User,
		UserName:    f.UserName,
		Timestamp:   ts,
		Kind:        models.Kind(f.MessageType),
		ContactInfo: f.ContactInfo,
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if f.Message != nil {
		m.Text = *f.Message
	}
	if f.MediaFile != nil {
		m.MediaFile = utils.ResolveRef(base, *f.MediaFile)
	}
	if f.MediaFileName != nil {
		m.MediaFileName = *f.MediaFileName
	}
	if f.UserImage != nil {
		m.UserImage = utils.ResolveRef(base, *f.UserImage)
	}
	return m
}

func newMessageFrame(user, room models.ID, at time.Time) Frame {
	return Frame{
		Action:    ActionMessage,
		User:      user,
		RoomID:    room,
		Timestamp: utils.FormatISO(at),
	}
}

func newTypingFrame(user, room models.ID, typing bool, at time.Time) Frame {
	return Frame{
		Action:    ActionTyping,
		User:      user,
		RoomID:    room,
		Timestamp: utils.FormatISO(at),
		Typing:    &typing,
	}
}
