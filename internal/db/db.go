package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the schema, then adds the partial indexes GORM
// tags cannot express. Postgres additionally gets its own constraints.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Vehicle{},
		&model.Cleaner{},
		&model.ScheduleImport{},
		&model.ScheduleVersion{},
		&model.CleaningEvent{},
		&model.Swap{},
		&model.ScheduleChangeLog{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if err := execDDL(db, portableDDL); err != nil {
		return err
	}
	if db.Dialector.Name() == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			return err
		}
	}
	return nil
}

// portableDDL runs on every dialect; sqlite and postgres both support
// partial indexes.
var portableDDL = []string{
	// One successful import per content hash, across every process sharing
	// the database.
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_schedule_imports_success_hash " +
		"ON schedule_imports (content_hash) WHERE status = 'SUCCESS';",
}

func applyPostgresDDL(db *gorm.DB) error {
	return execDDL(db, []string{
		// At most one active version per operational date.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_schedule_versions_one_active " +
			"ON schedule_versions (operational_date) WHERE is_active;",

		// Lookups by date on the active version's events.
		"CREATE INDEX IF NOT EXISTS idx_cleaning_events_version_departure " +
			"ON cleaning_events (schedule_version_id, scheduled_departure);",

		"DO $$ BEGIN " +
			"ALTER TABLE cleaning_events ADD CONSTRAINT cleaning_events_sla_before_departure " +
			"CHECK (sla_deadline < scheduled_departure); " +
			"EXCEPTION WHEN duplicate_object THEN NULL; END $$;",
	})
}

func execDDL(db *gorm.DB, ddls []string) error {
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
