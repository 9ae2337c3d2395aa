package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pushgate/internal/dispatch"
	"pushgate/internal/host"
	"pushgate/internal/notification"
	"pushgate/internal/quiethours"
	"pushgate/internal/storage"
	"pushgate/pkg/logx"
)

// maxPushBody matches the usual web push payload ceiling.
const maxPushBody = 4096

type handler struct {
	d   Deps
	log logx.Logger
}

type interactionRequest struct {
	Action       string                 `json:"action"`
	Notification notification.Canonical `json:"notification"`
}

type clientRequest struct {
	Type      host.SessionType `json:"type" binding:"required,oneof=window worker"`
	URL       string           `json:"url"`
	Focusable *bool            `json:"focusable"`
}

type quietHoursResponse struct {
	Schedule  quiethours.Schedule `json:"schedule"`
	Active    bool                `json:"active"`
	NextStart *time.Time          `json:"next_start,omitempty"`
	NextEnd   *time.Time          `json:"next_end,omitempty"`
}

func (h *handler) push(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > maxPushBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "push payload too large"})
		return
	}
	// HTTP cannot tell an absent body from an empty one.
	ev := host.NewPushEvent("http", body, len(body) > 0)

	out, err := h.d.Dispatcher.Dispatch(c.Request.Context(), dispatch.PushOf(ev))
	if err != nil {
		h.dispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": ev.ID, "decision": out.Decision})
}

func (h *handler) interact(c *gin.Context) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Notification.Tag == "" {
		req.Notification.Tag = notification.DefaultTag
	}
	out, err := h.d.Dispatcher.Dispatch(c.Request.Context(), dispatch.InteractionOf(req.Action, req.Notification))
	if err != nil {
		h.dispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"effect": out.Effect})
}

func (h *handler) dispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case c.Request.Context().Err() != nil:
		// client went away; the event keeps running
		c.Status(499)
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "dispatch failed", "details": err.Error()})
	}
}

func (h *handler) getQuietHours(c *gin.Context) {
	s, err := h.d.Store.Load(c.Request.Context())
	if errors.Is(err, storage.ErrNotFound) {
		s, err = quiethours.Default(), nil
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quiet hours", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.describe(s))
}

func (h *handler) putQuietHours(c *gin.Context) {
	var s quiethours.Schedule
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.d.Store.Save(ctx, s); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save quiet hours", "details": err.Error()})
		return
	}
	if h.d.Watcher != nil {
		if err := h.d.Watcher.Reload(ctx); err != nil {
			h.log.Warn("quiet hours watcher reload failed", logx.Err(err))
		}
	}
	h.log.Info("quiet hours updated", logx.String("schedule", s.String()))
	c.JSON(http.StatusOK, h.describe(s))
}

func (h *handler) describe(s quiethours.Schedule) quietHoursResponse {
	now := time.Now().In(h.d.Location)
	resp := quietHoursResponse{Schedule: s, Active: quiethours.IsActive(s, now)}
	if h.d.Watcher != nil {
		start, end := h.d.Watcher.Next(now)
		if !start.IsZero() {
			resp.NextStart = &start
		}
		if !end.IsZero() {
			resp.NextEnd = &end
		}
	}
	return resp
}

func (h *handler) registerClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	focusable := req.Type == host.SessionWindow
	if req.Focusable != nil {
		focusable = *req.Focusable
	}
	info := h.d.Clients.Register(req.Type, req.URL, focusable)
	c.JSON(http.StatusCreated, info)
}

func (h *handler) listClients(c *gin.Context) {
	list := h.d.Clients.List()
	c.JSON(http.StatusOK, gin.H{"clients": list, "count": len(list)})
}

func (h *handler) unregisterClient(c *gin.Context) {
	if !h.d.Clients.Unregister(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) status(c *gin.Context) {
	if h.d.Status == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.d.Status())
}
