package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/auth"
	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/clock"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/transcript"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offlineDialer struct{}

func (offlineDialer) DialContext(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
	return nil, nil, errors.New("network unreachable")
}

type stubHistory struct{}

func (stubHistory) Fetch(_ context.Context, roomID models.ID, w transcript.Window) (transcript.Page, error) {
	return transcript.Page{Total: 1, Messages: []models.Message{{
		ID:        "1",
		RoomID:    roomID,
		Text:      "hello",
		Kind:      models.KindText,
		Timestamp: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}}}, nil
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := chat.NewManager(chat.Options{
		Session:   auth.Session{UserID: "u1"},
		WSBaseURL: "ws://127.0.0.1:1/",
		History:   stubHistory{},
		Dialer:    offlineDialer{},
		Clock:     clock.NewFake(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)),
		Location:  time.UTC,
		Log:       log,
	})
	t.Cleanup(m.Close)

	r := gin.New()
	Register(r.Group("/api/v1"), m, log)
	return r
}

func do(r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGetRoomWithoutActiveRoom(t *testing.T) {
	r := setupRouter(t)
	w := do(r, http.MethodGet, "/api/v1/room", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "disconnected", body["state"])
	assert.Equal(t, []any{}, body["transcript"])
	assert.NotContains(t, body, "roomId")
}

func TestOperationsNeedActiveRoom(t *testing.T) {
	r := setupRouter(t)
	for _, tc := range []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/v1/room/messages", `{"text":"hi"}`},
		{http.MethodPut, "/api/v1/room/input", `{"text":"hi"}`},
		{http.MethodPost, "/api/v1/room/submit", ""},
		{http.MethodPost, "/api/v1/room/keystroke", ""},
		{http.MethodPost, "/api/v1/room/commit", ""},
		{http.MethodPost, "/api/v1/room/history/older", ""},
		{http.MethodPost, "/api/v1/room/reconnect", ""},
	} {
		w := do(r, tc.method, tc.path, bytes.NewBufferString(tc.body), "application/json")
		assert.Equal(t, http.StatusConflict, w.Code, tc.path)
	}
}

func TestSendTextValidation(t *testing.T) {
	r := setupRouter(t)
	w := do(r, http.MethodPost, "/api/v1/room/messages", bytes.NewBufferString(`{}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, []any{map[string]any{
		"field":   "text",
		"tag":     "required",
		"message": "This field is required.",
	}}, body["error"])
}

func TestActivateThenSnapshot(t *testing.T) {
	r := setupRouter(t)
	w := do(r, http.MethodPost, "/api/v1/rooms/abc/activate", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", decode(t, w)["roomId"])

	require.Eventually(t, func() bool {
		body := decode(t, do(r, http.MethodGet, "/api/v1/room", nil, ""))
		tr, _ := body["transcript"].([]any)
		return len(tr) == 1 && body["state"] == "disconnected"
	}, 2*time.Second, 5*time.Millisecond)

	body := decode(t, do(r, http.MethodGet, "/api/v1/room", nil, ""))
	entry := body["transcript"].([]any)[0].(map[string]any)
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "Today", entry["dateLabel"])
	assert.Equal(t, true, entry["showLabel"])

	w = do(r, http.MethodPost, "/api/v1/room/messages", bytes.NewBufferString(`{"text":"hi"}`), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/api/v1/room/history/older", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/room", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, decode(t, do(r, http.MethodGet, "/api/v1/room", nil, "")), "roomId")
}

func TestInputRoundTrip(t *testing.T) {
	r := setupRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/rooms/abc/activate", nil, "").Code)

	w := do(r, http.MethodPut, "/api/v1/room/input", bytes.NewBufferString(`{"text":"draft"}`), "application/json")
	require.Equal(t, http.StatusNoContent, w.Code)

	body := decode(t, do(r, http.MethodGet, "/api/v1/room", nil, ""))
	assert.Equal(t, map[string]any{"text": "draft"}, body["draft"])
}

func TestSendFileRequiresFile(t *testing.T) {
	r := setupRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/rooms/abc/activate", nil, "").Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", "caption"))
	require.NoError(t, mw.Close())

	w := do(r, http.MethodPost, "/api/v1/room/files", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendFileAccepted(t *testing.T) {
	r := setupRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/rooms/abc/activate", nil, "").Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("some notes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("text", "caption"))
	require.NoError(t, mw.Close())

	w := do(r, http.MethodPost, "/api/v1/room/files", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusAccepted, w.Code)

	body := decode(t, do(r, http.MethodGet, "/api/v1/room", nil, ""))
	assert.Equal(t, map[string]any{"text": ""}, body["draft"])
}

func TestSendLocalFile(t *testing.T) {
	r := setupRouter(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/rooms/abc/activate", nil, "").Code)

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	body, err := json.Marshal(map[string]any{"path": path, "text": "see attached"})
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/v1/room/files/local", bytes.NewReader(body), "application/json")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, map[string]any{"text": ""}, decode(t, do(r, http.MethodGet, "/api/v1/room", nil, ""))["draft"])

	missing, err := json.Marshal(map[string]any{"path": filepath.Join(t.TempDir(), "gone.png")})
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/room/files/local", bytes.NewReader(missing), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/room/files/local", bytes.NewBufferString(`{}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{map[string]any{
		"field":   "path",
		"tag":     "required",
		"message": "This field is required.",
	}}, decode(t, w)["error"])
}

func TestPresenceEndpoints(t *testing.T) {
	r := setupRouter(t)

	body := decode(t, do(r, http.MethodGet, "/api/v1/presence", nil, ""))
	assert.Equal(t, []any{}, body["online"])

	body = decode(t, do(r, http.MethodGet, "/api/v1/presence/u2", nil, ""))
	assert.Equal(t, map[string]any{"userId": "u2", "online": false}, body)
}
