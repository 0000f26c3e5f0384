package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/model"
	"cleaning-schedule-backend/internal/parse"
)

// VersionResult summarizes one CreateVersion call.
type VersionResult struct {
	Version    model.ScheduleVersion
	Inserted   int
	Duplicates int
	New        int
	Changed    int
	Removed    int
	// Cancelled counts CANCELADO copies carried into the new version.
	Cancelled int
}

// CreateVersion replaces the active version of day with a new one holding
// events, and records the differences against the previous one. All of it
// happens in one transaction; any failure leaves the previous version active.
func (s *gormStore) CreateVersion(ctx context.Context, importID uuid.UUID, events []parse.NormalizedEvent, day string) (*VersionResult, error) {
	unlock := s.dates.Lock(day)
	defer unlock()

	var result VersionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if isPostgres(tx) {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", day).Error; err != nil {
				return fmt.Errorf("failed to lock date %s: %w", day, err)
			}
		}

		prev, err := activeVersion(tx, day)
		if err != nil {
			return err
		}

		var maxNumber int
		if err := tx.Model(&model.ScheduleVersion{}).
			Where("operational_date = ?", day).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxNumber).Error; err != nil {
			return fmt.Errorf("failed to read version numbers for %s: %w", day, err)
		}

		// The previous version goes inactive first so the partial unique index
		// on active versions never sees two rows.
		if prev != nil {
			if err := tx.Model(&model.ScheduleVersion{}).
				Where("id = ?", prev.ID).
				Update("is_active", false).Error; err != nil {
				return fmt.Errorf("failed to deactivate version %s: %w", prev.ID, err)
			}
		}

		version := model.ScheduleVersion{
			OperationalDate:  day,
			VersionNumber:    maxNumber + 1,
			IsActive:         true,
			ScheduleImportID: importID,
		}
		if err := tx.Omit(clause.Associations).Create(&version).Error; err != nil {
			return fmt.Errorf("failed to create version %d for %s: %w", version.VersionNumber, day, err)
		}
		result.Version = version

		unique, dups := Dedup(events, func(e parse.NormalizedEvent) string { return e.BusinessKey })
		result.Duplicates = dups

		inserted, err := insertEvents(tx, version.ID, unique)
		if err != nil {
			return err
		}
		result.Inserted = len(inserted)

		if prev == nil {
			return nil
		}

		changes, carried := Diff(prev.Events, inserted)
		if err := carryForward(tx, version.ID, carried); err != nil {
			return err
		}
		result.Cancelled = len(carried)

		if err := writeChangeLog(tx, day, prev.ID, version.ID, changes); err != nil {
			return err
		}
		for _, c := range changes {
			switch c.Type {
			case model.ChangeNew:
				result.New++
			case model.ChangeChanged:
				result.Changed++
			case model.ChangeRemoved:
				result.Removed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrVersioning, err)
	}

	s.log.Info("schedule version created",
		"date", day,
		"version", result.Version.VersionNumber,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"new", result.New,
		"changed", result.Changed,
		"removed", result.Removed,
	)
	return &result, nil
}

// activeVersion loads the active version of day with its events, or nil.
func activeVersion(tx *gorm.DB, day string) (*model.ScheduleVersion, error) {
	q := tx.Preload("Events")
	if isPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var prev model.ScheduleVersion
	err := q.Where("operational_date = ? AND is_active = ?", day, true).First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active version for %s: %w", day, err)
	}
	return &prev, nil
}

func insertEvents(tx *gorm.DB, versionID uuid.UUID, events []parse.NormalizedEvent) ([]model.CleaningEvent, error) {
	vehicles := make(map[string]uuid.UUID)
	rows := make([]model.CleaningEvent, 0, len(events))
	for _, e := range events {
		vid, ok := vehicles[e.VehicleNumber]
		if !ok {
			v, err := findOrCreateVehicle(tx, e.VehicleNumber, &versionID)
			if err != nil {
				return nil, err
			}
			vid = v.ID
			vehicles[e.VehicleNumber] = vid
		}

		departure := e.ScheduledDeparture.UTC()
		rows = append(rows, model.CleaningEvent{
			ScheduleVersionID:  versionID,
			BusinessKey:        e.BusinessKey,
			VehicleID:          vid,
			OperationalDate:    e.Day(),
			TripTime:           e.TripTime,
			Status:             model.StatusPlanned,
			ScheduledDeparture: departure,
			SLADeadline:        departure.Add(-model.SLALead),
			Class:              e.Class,
			Company:            e.Company,
			ServiceNumber:      e.ServiceNumber,
			Driver:             e.Driver,
			ClientObservation:  e.ClientObservation,
		})
	}
	if len(rows) == 0 {
		return rows, nil
	}
	if err := tx.Omit(clause.Associations).CreateInBatches(&rows, 200).Error; err != nil {
		return nil, fmt.Errorf("failed to insert %d events: %w", len(rows), err)
	}
	return rows, nil
}

// carryForward copies events missing from the new batch into the new version
// as CANCELADO, so the active version always shows the full day.
func carryForward(tx *gorm.DB, versionID uuid.UUID, carried []model.CleaningEvent) error {
	if len(carried) == 0 {
		return nil
	}
	rows := make([]model.CleaningEvent, 0, len(carried))
	for _, old := range carried {
		rows = append(rows, model.CleaningEvent{
			ScheduleVersionID:  versionID,
			BusinessKey:        old.BusinessKey,
			VehicleID:          old.VehicleID,
			OperationalDate:    old.OperationalDate,
			TripTime:           old.TripTime,
			Status:             model.StatusCancelled,
			ScheduledDeparture: old.ScheduledDeparture,
			SLADeadline:        old.SLADeadline,
			Class:              old.Class,
			Company:            old.Company,
			ServiceNumber:      old.ServiceNumber,
			Driver:             old.Driver,
			ClientObservation:  old.ClientObservation,
		})
	}
	if err := tx.Omit(clause.Associations).CreateInBatches(&rows, 200).Error; err != nil {
		return fmt.Errorf("failed to carry %d cancelled events forward: %w", len(rows), err)
	}
	return nil
}

func writeChangeLog(tx *gorm.DB, day string, from, to uuid.UUID, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	rows := make([]model.ScheduleChangeLog, 0, len(changes))
	for _, c := range changes {
		oldJSON, err := snapshotJSON(c.Old)
		if err != nil {
			return err
		}
		newJSON, err := snapshotJSON(c.New)
		if err != nil {
			return err
		}
		rows = append(rows, model.ScheduleChangeLog{
			OperationalDate: day,
			FromVersionID:   from,
			ToVersionID:     to,
			ChangeType:      c.Type,
			BusinessKey:     c.BusinessKey,
			VehicleID:       c.VehicleID,
			OldValues:       oldJSON,
			NewValues:       newJSON,
		})
	}
	if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
		return fmt.Errorf("failed to write %d change log entries: %w", len(rows), err)
	}
	return nil
}

func snapshotJSON(s *model.EventSnapshot) (datatypes.JSON, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event snapshot %s: %w", s.BusinessKey, err)
	}
	return datatypes.JSON(b), nil
}
