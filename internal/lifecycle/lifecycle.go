package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/metrics"
	"cleaning-schedule-backend/internal/model"
	"cleaning-schedule-backend/internal/store"
)

// Checklist is the operator's confirmation of the cleaning steps.
type Checklist struct {
	Interior bool `json:"interior"`
	Exterior bool `json:"exterior"`
	Tires    bool `json:"tires"`
}

// Complete reports whether every step was confirmed.
func (c Checklist) Complete() bool {
	return c.Interior && c.Exterior && c.Tires
}

// Service applies operator actions to cleaning events.
type Service struct {
	store   store.Store
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// New creates the lifecycle service.
func New(st store.Store, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{store: st, metrics: m, log: log, now: time.Now}
}

// Start assigns a cleaner and moves the event to EM_ANDAMENTO. Starting an
// event that is already in progress reassigns the cleaner.
func (s *Service) Start(ctx context.Context, eventID uuid.UUID, actorID string, cleanerID uuid.UUID) (*model.CleaningEvent, error) {
	ev, err := s.store.UpdateEvent(ctx, eventID, func(tx store.EventTx, ev *model.CleaningEvent) error {
		if ev.Status.Terminal() {
			return fmt.Errorf("%w: cannot start event in status %s", apperr.ErrConflict, ev.Status)
		}
		if cleanerID == uuid.Nil {
			return fmt.Errorf("%w: cleaner is required", apperr.ErrValidation)
		}
		cleaner, err := tx.Cleaner(cleanerID)
		if err != nil {
			return err
		}
		if !cleaner.Active {
			return fmt.Errorf("%w: cleaner %s is inactive", apperr.ErrValidation, cleaner.Name)
		}

		now := s.now().UTC()
		ev.CleanerID = &cleaner.ID
		ev.Status = model.StatusInProgress
		ev.StartedAt = &now
		ev.StartedBy = actorID
		return nil
	})
	return s.done("start", eventID, actorID, ev, err)
}

// Finish closes an in-progress event. A checklist with an unconfirmed step
// needs an observation explaining it.
func (s *Service) Finish(ctx context.Context, eventID uuid.UUID, actorID string, checklist Checklist, observation string) (*model.CleaningEvent, error) {
	observation = strings.TrimSpace(observation)
	ev, err := s.store.UpdateEvent(ctx, eventID, func(_ store.EventTx, ev *model.CleaningEvent) error {
		switch ev.Status {
		case model.StatusInProgress:
		case model.StatusPlanned:
			return fmt.Errorf("%w: event must be started before it is finished", apperr.ErrConflict)
		default:
			return fmt.Errorf("%w: cannot finish event in status %s", apperr.ErrConflict, ev.Status)
		}
		if !checklist.Complete() && observation == "" {
			return fmt.Errorf("%w: an observation is required when the checklist is incomplete", apperr.ErrValidation)
		}

		now := s.now().UTC()
		ev.Status = model.StatusDone
		ev.FinishedAt = &now
		ev.CompletedBy = actorID
		ev.CheckInterior = checklist.Interior
		ev.CheckExterior = checklist.Exterior
		ev.CheckTires = checklist.Tires
		ev.OperationObservation = observation
		return nil
	})
	return s.done("finish", eventID, actorID, ev, err)
}

// Swap replaces the vehicle serving an event. Departure and SLA stay as
// scheduled.
func (s *Service) Swap(ctx context.Context, eventID uuid.UUID, actorID, replacementNumber string, reason model.SwapReason, note string) (*model.CleaningEvent, error) {
	replacementNumber = strings.TrimSpace(replacementNumber)
	ev, err := s.store.UpdateEvent(ctx, eventID, func(tx store.EventTx, ev *model.CleaningEvent) error {
		if ev.Status == model.StatusDone {
			return fmt.Errorf("%w: cannot swap the vehicle of a finished event", apperr.ErrConflict)
		}
		if replacementNumber == "" {
			return fmt.Errorf("%w: replacement vehicle is required", apperr.ErrValidation)
		}
		if !reason.Valid() {
			return fmt.Errorf("%w: unknown swap reason %q", apperr.ErrValidation, reason)
		}

		replacement, err := tx.Vehicle(replacementNumber)
		if err != nil {
			return err
		}
		if replacement.ID == ev.VehicleID {
			return fmt.Errorf("%w: replacement is the vehicle already assigned", apperr.ErrValidation)
		}

		if err := tx.AddSwap(&model.Swap{
			EventID:              ev.ID,
			OriginalVehicleID:    ev.VehicleID,
			ReplacementVehicleID: replacement.ID,
			Reason:               reason,
			Note:                 strings.TrimSpace(note),
			CreatedBy:            actorID,
		}); err != nil {
			return err
		}
		ev.VehicleID = replacement.ID
		return nil
	})
	return s.done("swap", eventID, actorID, ev, err)
}

func (s *Service) done(action string, eventID uuid.UUID, actorID string, ev *model.CleaningEvent, err error) (*model.CleaningEvent, error) {
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, apperr.ErrConflict):
			result = "conflict"
		case errors.Is(err, apperr.ErrValidation):
			result = "invalid"
		case errors.Is(err, apperr.ErrNotFound):
			result = "not_found"
		}
		s.metrics.LifecycleTransitions.WithLabelValues(action, result).Inc()
		s.log.Warn("event action rejected", "action", action, "event_id", eventID, "actor", actorID, "error", err)
		return nil, err
	}
	s.metrics.LifecycleTransitions.WithLabelValues(action, "ok").Inc()
	s.log.Info("event updated", "action", action, "event_id", eventID, "actor", actorID, "status", ev.Status)
	return ev, nil
}
