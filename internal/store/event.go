package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/model"
)

// EventTx exposes the lookups a lifecycle action may need while it holds the
// event lock.
type EventTx interface {
	Cleaner(id uuid.UUID) (*model.Cleaner, error)
	// Vehicle returns the vehicle with the given client number, creating it
	// when it is unknown.
	Vehicle(number string) (*model.Vehicle, error)
	AddSwap(swap *model.Swap) error
}

type eventTx struct {
	tx *gorm.DB
}

func (e eventTx) Cleaner(id uuid.UUID) (*model.Cleaner, error) {
	var c model.Cleaner
	err := e.tx.First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: cleaner %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cleaner %s: %w", id, err)
	}
	return &c, nil
}

func (e eventTx) Vehicle(number string) (*model.Vehicle, error) {
	return findOrCreateVehicle(e.tx, number, nil)
}

func (e eventTx) AddSwap(swap *model.Swap) error {
	if err := e.tx.Omit(clause.Associations).Create(swap).Error; err != nil {
		return fmt.Errorf("failed to record swap on event %s: %w", swap.EventID, err)
	}
	return nil
}

// UpdateEvent runs fn against the event inside a transaction that holds the
// event row lock, then saves the event. fn errors abort the whole action.
// The returned event carries the operator projection.
func (s *gormStore) UpdateEvent(ctx context.Context, id uuid.UUID, fn func(tx EventTx, ev *model.CleaningEvent) error) (*model.CleaningEvent, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if isPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var ev model.CleaningEvent
		if err := q.First(&ev, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: event %s", apperr.ErrNotFound, id)
			}
			return fmt.Errorf("failed to lock event %s: %w", id, err)
		}

		if err := fn(eventTx{tx: tx}, &ev); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Save(&ev).Error; err != nil {
			return fmt.Errorf("failed to save event %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.EventByID(ctx, id)
}

// findOrCreateVehicle resolves a vehicle by client number. Concurrent creators
// of the same number converge on one row through the unique index.
func findOrCreateVehicle(tx *gorm.DB, number string, createdFrom *uuid.UUID) (*model.Vehicle, error) {
	number = strings.TrimSpace(number)
	var v model.Vehicle
	err := tx.Where("external_number = ?", number).First(&v).Error
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up vehicle %s: %w", number, err)
	}

	v = model.Vehicle{ExternalNumber: number, CreatedFromVersionID: createdFrom}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_number"}},
		DoNothing: true,
	}).Create(&v)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create vehicle %s: %w", number, res.Error)
	}
	if res.RowsAffected == 0 {
		v = model.Vehicle{}
		if err := tx.Where("external_number = ?", number).First(&v).Error; err != nil {
			return nil, fmt.Errorf("failed to reload vehicle %s: %w", number, err)
		}
	}
	return &v, nil
}
