package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"cleaning-schedule-backend/internal/apperr"
)

type cleanerRequest struct {
	Name string `json:"name" binding:"required,max=128"`
}

// GetCleaners handles GET /api/cleaners.
func (h *Handler) GetCleaners(c *gin.Context) {
	cleaners, err := h.store.Cleaners(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cleaners)
}

// PostCleaner handles POST /api/cleaners.
func (h *Handler) PostCleaner(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	var req cleanerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", apperr.ErrValidation, err))
		return
	}
	cleaner, err := h.store.CreateCleaner(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cleaner)
}
