package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/importer"
	"cleaning-schedule-backend/internal/lifecycle"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/model"
	"cleaning-schedule-backend/internal/store"
)

// ActorHeader carries the identity set by the authentication proxy.
const ActorHeader = "X-Actor-ID"

// Importer turns uploaded files into schedule versions.
type Importer interface {
	Process(ctx context.Context, req importer.Request) (*importer.Result, error)
}

// Lifecycle applies operator actions to events.
type Lifecycle interface {
	Start(ctx context.Context, eventID uuid.UUID, actorID string, cleanerID uuid.UUID) (*model.CleaningEvent, error)
	Finish(ctx context.Context, eventID uuid.UUID, actorID string, checklist lifecycle.Checklist, observation string) (*model.CleaningEvent, error)
	Swap(ctx context.Context, eventID uuid.UUID, actorID, replacementNumber string, reason model.SwapReason, note string) (*model.CleaningEvent, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	importer  Importer
	lifecycle Lifecycle
	log       logger.Logger
	location  *time.Location
	maxBytes  int64
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, imp Importer, lc Lifecycle, log logger.Logger, loc *time.Location, maxBytes int64) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:     s,
		importer:  imp,
		lifecycle: lc,
		log:       log,
		location:  loc,
		maxBytes:  maxBytes,
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrInput), errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrExtraction), errors.Is(err, apperr.ErrNormalization):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Internal details are logged
// and never returned to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) actor(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetHeader(ActorHeader))
	if actor == "" {
		h.respondError(c, fmt.Errorf("%w: missing %s header", apperr.ErrInput, ActorHeader))
		return "", false
	}
	return actor, true
}

// day reads the ?date= query, defaulting to today in the schedule zone.
func (h *Handler) day(c *gin.Context) (string, bool) {
	raw := c.Query("date")
	if raw == "" {
		return time.Now().In(h.location).Format(model.DayLayout), true
	}
	if _, err := time.ParseInLocation(model.DayLayout, raw, h.location); err != nil {
		h.respondError(c, fmt.Errorf("%w: date must be YYYY-MM-DD", apperr.ErrInput))
		return "", false
	}
	return raw, true
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.respondError(c, fmt.Errorf("%w: invalid %s", apperr.ErrInput, name))
		return uuid.Nil, false
	}
	return id, true
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
