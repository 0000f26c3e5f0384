package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/lifecycle"
	"cleaning-schedule-backend/internal/model"
)

type startRequest struct {
	CleanerID uuid.UUID `json:"cleanerId"`
}

type finishRequest struct {
	lifecycle.Checklist
	Observation string `json:"observation"`
}

type swapRequest struct {
	ReplacementVehicle string `json:"replacementVehicle" binding:"required"`
	Reason             string `json:"reason" binding:"required,oneof=QUEBRA MANUT OUTROS"`
	Note               string `json:"note"`
}

// eventAction parses the common parts of an event action request.
func (h *Handler) eventAction(c *gin.Context, body interface{}) (uuid.UUID, string, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return uuid.Nil, "", false
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return uuid.Nil, "", false
	}
	if err := c.ShouldBindJSON(body); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return uuid.Nil, "", false
	}
	return id, actor, true
}

// PostStart handles POST /api/events/:id/start.
func (h *Handler) PostStart(c *gin.Context) {
	var req startRequest
	id, actor, ok := h.eventAction(c, &req)
	if !ok {
		return
	}
	ev, err := h.lifecycle.Start(c.Request.Context(), id, actor, req.CleanerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// PostFinish handles POST /api/events/:id/finish.
func (h *Handler) PostFinish(c *gin.Context) {
	var req finishRequest
	id, actor, ok := h.eventAction(c, &req)
	if !ok {
		return
	}
	ev, err := h.lifecycle.Finish(c.Request.Context(), id, actor, req.Checklist, req.Observation)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// PostSwap handles POST /api/events/:id/swap.
func (h *Handler) PostSwap(c *gin.Context) {
	var req swapRequest
	id, actor, ok := h.eventAction(c, &req)
	if !ok {
		return
	}
	ev, err := h.lifecycle.Swap(c.Request.Context(), id, actor, req.ReplacementVehicle, model.SwapReason(req.Reason), req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// GetEvent handles GET /api/events/:id.
func (h *Handler) GetEvent(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	ev, err := h.store.EventByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}
