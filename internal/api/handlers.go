// Package api is the local HTTP surface the UI drives the sync core through.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
	"github.com/ageniuscoder/mmchat/client/internal/httpx"
	"github.com/ageniuscoder/mmchat/client/internal/media"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/transcript"
	"github.com/ageniuscoder/mmchat/client/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Service struct {
	Chat *chat.Manager
	Log  *slog.Logger
}

type inputReq struct {
	Text string `json:"text"`
}

type sendReq struct {
	Text string `json:"text" binding:"required"`
}

type localFileReq struct {
	Path string  `json:"path" binding:"required"`
	Text *string `json:"text"`
}

// event is what the events stream writes for each update.
type event struct {
	chat.Update
	Error string `json:"error,omitempty"`
}

func Register(rg *gin.RouterGroup, m *chat.Manager, log *slog.Logger) {
	s := Service{
		Chat: m,
		Log:  log.With("component", "api"),
	}

	rg.GET("/room", s.getRoom)
	rg.POST("/rooms/:roomId/activate", s.activate)
	rg.DELETE("/room", s.deactivate)
	rg.POST("/room/reconnect", s.reconnect)
	rg.PUT("/room/input", s.setInput)
	rg.POST("/room/submit", s.submit)
	rg.POST("/room/messages", s.sendText)
	rg.POST("/room/files", s.sendFile)
	rg.POST("/room/files/local", s.sendLocalFile)
	rg.POST("/room/keystroke", s.keystroke)
	rg.POST("/room/commit", s.commit)
	rg.POST("/room/history/older", s.loadOlder)
	rg.GET("/presence", s.online)
	rg.GET("/presence/:userId", s.isOnline)
	rg.GET("/events", s.events)
}

func (s Service) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNoActiveRoom),
		errors.Is(err, chat.ErrLoadInProgress),
		errors.Is(err, chat.ErrRoomChanged):
		httpx.Err(c, http.StatusConflict, err.Error())
	case errors.Is(err, transcript.ErrNoMoreHistory):
		httpx.Err(c, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrNotConnected),
		errors.Is(err, chat.ErrClosed):
		httpx.Err(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		httpx.Err(c, http.StatusGatewayTimeout, err.Error())
	default:
		s.Log.Error("request failed", "path", c.FullPath(), "err", err)
		httpx.Err(c, http.StatusInternalServerError, "internal error")
	}
}

func (s Service) view(c *gin.Context) {
	v, err := s.Chat.Snapshot(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	httpx.OK(c, v)
}

func (s Service) getRoom(c *gin.Context) {
	s.view(c)
}

func (s Service) activate(c *gin.Context) {
	roomID := models.ID(c.Param("roomId"))
	if err := s.Chat.ActivateRoom(c.Request.Context(), roomID); err != nil {
		s.fail(c, err)
		return
	}
	s.view(c)
}

func (s Service) deactivate(c *gin.Context) {
	if err := s.Chat.DeactivateRoom(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Service) reconnect(c *gin.Context) {
	if err := s.Chat.Reconnect(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	s.view(c)
}

func (s Service) setInput(c *gin.Context) {
	var req inputReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Chat.SetInput(c.Request.Context(), req.Text); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Service) submit(c *gin.Context) {
	if err := s.Chat.Submit(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s Service) sendText(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Chat.SendText(c.Request.Context(), req.Text); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// sendFile attaches the uploaded file; an optional text form field becomes
// the caption. The frame is written once encoding finishes, so success here
// only means the send was started.
func (s Service) sendFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "file is required")
		return
	}
	f, err := media.FromMultipart(fh)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	if text, ok := c.GetPostForm("text"); ok {
		if err := s.Chat.SetInput(ctx, text); err != nil {
			s.fail(c, err)
			return
		}
	}
	if err := s.Chat.SendFile(ctx, f); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// sendLocalFile sends a file the UI picked from disk by path, without
// uploading it.
func (s Service) sendLocalFile(c *gin.Context) {
	var req localFileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	f, err := media.Open(req.Path)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	if req.Text != nil {
		if err := s.Chat.SetInput(ctx, *req.Text); err != nil {
			s.fail(c, err)
			return
		}
	}
	if err := s.Chat.SendFile(ctx, f); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s Service) keystroke(c *gin.Context) {
	if err := s.Chat.NotifyKeystroke(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Service) commit(c *gin.Context) {
	if err := s.Chat.NotifyCommit(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s Service) loadOlder(c *gin.Context) {
	if err := s.Chat.LoadOlderHistory(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	s.view(c)
}

func (s Service) online(c *gin.Context) {
	httpx.OK(c, gin.H{"online": s.Chat.Online()})
}

func (s Service) isOnline(c *gin.Context) {
	uid := models.ID(c.Param("userId"))
	httpx.OK(c, gin.H{"userId": uid, "online": s.Chat.IsOnline(uid)})
}

// events streams updates as server-sent events. The update feed has a
// single reader, so only one stream should be open at a time.
func (s Service) events(c *gin.Context) {
	updates := s.Chat.Updates()
	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				return false
			}
			ev := event{Update: u}
			if u.Err != nil {
				ev.Error = u.Err.Error()
			}
			c.SSEvent(string(u.Kind), ev)
			return true
		case <-done:
			return false
		}
	})
}
