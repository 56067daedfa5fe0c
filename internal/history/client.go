// Package history fetches pages of a room's transcript from the chat REST
// API (limit/offset pagination, newest first).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/transcript"
	"github.com/ageniuscoder/mmchat/client/internal/utils"
	"github.com/sendgrid/rest"
)

var ErrUnexpectedStatus = errors.New("history: unexpected status")

const messagesPath = "api/v1/chats/%s/messages"

type Client struct {
	base  *url.URL
	token string
	api   *rest.Client
	log   *slog.Logger
}

// New returns a client for the API rooted at baseURL. token is sent as a
// bearer token; httpClient may be nil.
func New(baseURL, token string, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("history: base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:  base,
		token: token,
		api:   &rest.Client{HTTPClient: httpClient},
		log:   log.With("component", "history"),
	}, nil
}

type pageResp struct {
	Count   int           `json:"count"`
	Next    *string       `json:"next"`
	Results []messageResp `json:"results"`
}

type messageResp struct {
	ID          models.ID       `json:"id"`
	Chat        models.ID       `json:"chat"`
	User        models.ID       `json:"user"`
	Message     *string         `json:"message"`
	MessageType string          `json:"message_type"`
	MediaFile   *string         `json:"media_file"`
	ContactInfo json.RawMessage `json:"contact_info"`
	Timestamp   string          `json:"timestamp"`
	UserName    string          `json:"userName"`
	UserImage   *string         `json:"userImage"`
}

// Fetch returns the messages of roomID inside window w.
func (c *Client) Fetch(ctx context.Context, roomID models.ID, w transcript.Window) (transcript.Page, error) {
	req := rest.Request{
		Method:  rest.Get,
		BaseURL: c.base.String() + fmt.Sprintf(messagesPath, url.PathEscape(roomID.String())),
		Headers: map[string]string{
			"Accept": "application/json",
		},
		QueryParams: map[string]string{
			"limit":  strconv.Itoa(w.Limit),
			"offset": strconv.Itoa(w.Offset),
		},
	}
	if c.token != "" {
		req.Headers["Authorization"] = "Bearer " + c.token
	}

	resp, err := c.api.SendWithContext(ctx, req)
	if err != nil {
		return transcript.Page{}, fmt.Errorf("history: fetch room %s: %w", roomID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return transcript.Page{}, fmt.Errorf("%w %d for room %s", ErrUnexpectedStatus, resp.StatusCode, roomID)
	}

	var body pageResp
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		return transcript.Page{}, fmt.Errorf("history: decode room %s: %w", roomID, err)
	}

	page := transcript.Page{Total: body.Count, Messages: make([]models.Message, 0, len(body.Results))}
	for _, r := range body.Results {
		m, err := c.toMessage(roomID, r)
		if err != nil {
			c.log.Warn("skipping history row", "room", roomID, "id", r.ID, "err", err)
			continue
		}
		page.Messages = append(page.Messages, m)
	}
	c.log.Debug("history page fetched", "room", roomID, "limit", w.Limit, "offset", w.Offset, "got", len(page.Messages), "total", body.Count)
	return page, nil
}

func (c *Client) toMessage(roomID models.ID, r messageResp) (models.Message, error) {
	ts, err := utils.ParseTime(r.Timestamp)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:        r.ID,
		RoomID:    roomID,
		UserID:    r.User,
		UserName:  r.UserName,
		Timestamp: ts,
		Kind:      models.Kind(r.MessageType),
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if r.Message != nil {
		m.Text = *r.Message
	}
	if r.MediaFile != nil {
		m.MediaFile = utils.ResolveRef(c.base, *r.MediaFile)
	}
	if r.UserImage != nil {
		m.UserImage = utils.ResolveRef(c.base, *r.UserImage)
	}
	if len(r.ContactInfo) > 0 && string(r.ContactInfo) != "null" {
		m.ContactInfo = r.ContactInfo
	}
	return m, nil
}

// Base is the address relative media references are resolved against.
func (c *Client) Base() *url.URL { return c.base }
