package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEvents handles GET /api/schedule/events?date=YYYY-MM-DD. It returns the
// events of the active version of the date.
func (h *Handler) GetEvents(c *gin.Context) {
	day, ok := h.day(c)
	if !ok {
		return
	}
	events, err := h.store.ActiveEvents(c.Request.Context(), day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "events": events})
}

// GetVersions handles GET /api/schedule/versions?date=YYYY-MM-DD.
func (h *Handler) GetVersions(c *gin.Context) {
	day, ok := h.day(c)
	if !ok {
		return
	}
	versions, err := h.store.Versions(c.Request.Context(), day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "versions": versions})
}

// GetVersionChanges handles GET /api/schedule/versions/:id/changes.
func (h *Handler) GetVersionChanges(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	changes, err := h.store.ChangeLogs(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, changes)
}
