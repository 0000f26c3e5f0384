package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/keylock"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/model"
	"cleaning-schedule-backend/internal/parse"
)

// Store defines the interface for all database operations.
type Store interface {
	// Import provenance
	FindSuccessfulImport(ctx context.Context, contentHash string) (*model.ScheduleImport, error)
	CreateImport(ctx context.Context, imp *model.ScheduleImport) error
	FinalizeImport(ctx context.Context, id uuid.UUID, status model.ImportStatus, records int, details string) error
	Imports(ctx context.Context, limit int) ([]model.ScheduleImport, error)

	// Versioning
	CreateVersion(ctx context.Context, importID uuid.UUID, events []parse.NormalizedEvent, day string) (*VersionResult, error)
	Versions(ctx context.Context, day string) ([]model.ScheduleVersion, error)
	ChangeLogs(ctx context.Context, versionID uuid.UUID) ([]model.ScheduleChangeLog, error)

	// Events
	ActiveEvents(ctx context.Context, day string) ([]model.CleaningEvent, error)
	EventByID(ctx context.Context, id uuid.UUID) (*model.CleaningEvent, error)
	UpdateEvent(ctx context.Context, id uuid.UUID, fn func(tx EventTx, ev *model.CleaningEvent) error) (*model.CleaningEvent, error)

	// Cleaners
	Cleaners(ctx context.Context) ([]model.Cleaner, error)
	CreateCleaner(ctx context.Context, name string) (*model.Cleaner, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	log   logger.Logger
	dates *keylock.Mutex
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, log logger.Logger) Store {
	return &gormStore{db: db, log: log, dates: keylock.New()}
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// FindSuccessfulImport returns the SUCCESS import with the given fingerprint,
// or nil when there is none.
func (s *gormStore) FindSuccessfulImport(ctx context.Context, contentHash string) (*model.ScheduleImport, error) {
	var imp model.ScheduleImport
	err := s.db.WithContext(ctx).
		Where("content_hash = ? AND status = ?", contentHash, model.ImportSuccess).
		Order("created_at").
		First(&imp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up import by hash: %w", err)
	}
	return &imp, nil
}

func (s *gormStore) CreateImport(ctx context.Context, imp *model.ScheduleImport) error {
	if imp.Status == "" {
		imp.Status = model.ImportPartial
	}
	if err := s.db.WithContext(ctx).Create(imp).Error; err != nil {
		return fmt.Errorf("failed to create import record: %w", err)
	}
	return nil
}

// FinalizeImport moves a PARTIAL import to its final status. An import is
// finalized at most once.
func (s *gormStore) FinalizeImport(ctx context.Context, id uuid.UUID, status model.ImportStatus, records int, details string) error {
	res := s.db.WithContext(ctx).Model(&model.ScheduleImport{}).
		Where("id = ? AND status = ?", id, model.ImportPartial).
		Updates(map[string]interface{}{
			"status":            status,
			"records_count_raw": records,
			"error_details":     details,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize import %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: import %s is not pending", apperr.ErrConflict, id)
	}
	return nil
}

func (s *gormStore) Imports(ctx context.Context, limit int) ([]model.ScheduleImport, error) {
	if limit <= 0 {
		limit = 50
	}
	var imports []model.ScheduleImport
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&imports).Error; err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	return imports, nil
}

// Versions lists every version of a date, newest first.
func (s *gormStore) Versions(ctx context.Context, day string) ([]model.ScheduleVersion, error) {
	var versions []model.ScheduleVersion
	if err := s.db.WithContext(ctx).
		Where("operational_date = ?", day).
		Order("version_number DESC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions for %s: %w", day, err)
	}
	return versions, nil
}

// ChangeLogs returns the diff rows that produced a version.
func (s *gormStore) ChangeLogs(ctx context.Context, versionID uuid.UUID) ([]model.ScheduleChangeLog, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.ScheduleVersion{}).Where("id = ?", versionID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up version %s: %w", versionID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: version %s", apperr.ErrNotFound, versionID)
	}

	var logs []model.ScheduleChangeLog
	if err := db.Where("to_version_id = ?", versionID).
		Order("change_type, business_key").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list changes for version %s: %w", versionID, err)
	}
	return logs, nil
}

// ActiveEvents returns the events of the active version of a date ordered by
// departure. A date without versions yields an empty list.
func (s *gormStore) ActiveEvents(ctx context.Context, day string) ([]model.CleaningEvent, error) {
	db := s.db.WithContext(ctx)
	active := db.Model(&model.ScheduleVersion{}).
		Select("id").
		Where("operational_date = ? AND is_active = ?", day, true)

	var events []model.CleaningEvent
	if err := withProjection(db).
		Where("schedule_version_id IN (?)", active).
		Order("scheduled_departure, business_key").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list active events for %s: %w", day, err)
	}
	return events, nil
}

func (s *gormStore) EventByID(ctx context.Context, id uuid.UUID) (*model.CleaningEvent, error) {
	var ev model.CleaningEvent
	err := withProjection(s.db.WithContext(ctx)).First(&ev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: event %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", id, err)
	}
	return &ev, nil
}

// withProjection preloads what the operator screens show next to an event.
func withProjection(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Vehicle").
		Preload("Cleaner").
		Preload("Swaps", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Preload("Swaps.OriginalVehicle").
		Preload("Swaps.ReplacementVehicle")
}

func (s *gormStore) Cleaners(ctx context.Context) ([]model.Cleaner, error) {
	var cleaners []model.Cleaner
	if err := s.db.WithContext(ctx).Order("name").Find(&cleaners).Error; err != nil {
		return nil, fmt.Errorf("failed to list cleaners: %w", err)
	}
	return cleaners, nil
}

func (s *gormStore) CreateCleaner(ctx context.Context, name string) (*model.Cleaner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: cleaner name is required", apperr.ErrValidation)
	}
	c := model.Cleaner{Name: name, Active: true}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("failed to create cleaner: %w", err)
	}
	return &c, nil
}
