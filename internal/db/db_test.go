package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleaning-schedule-backend/internal/db/dbtest"
	"cleaning-schedule-backend/internal/model"
)

func TestMigrate(t *testing.T) {
	gdb := dbtest.New(t)

	for _, m := range []interface{}{
		&model.Vehicle{},
		&model.Cleaner{},
		&model.ScheduleImport{},
		&model.ScheduleVersion{},
		&model.CleaningEvent{},
		&model.Swap{},
		&model.ScheduleChangeLog{},
	} {
		assert.True(t, gdb.Migrator().HasTable(m), "%T", m)
	}
	assert.True(t, gdb.Migrator().HasIndex(&model.ScheduleVersion{}, "idx_schedule_versions_date_number"))
}

func TestMigrate_SuccessfulImportHashIsUnique(t *testing.T) {
	gdb := dbtest.New(t)
	assert.True(t, gdb.Migrator().HasIndex(&model.ScheduleImport{}, "idx_schedule_imports_success_hash"))

	newImport := func(status model.ImportStatus) error {
		return gdb.Create(&model.ScheduleImport{
			SourceType:  model.SourceCSV,
			ContentHash: "same-content",
			Status:      status,
			ImportedBy:  "planner",
		}).Error
	}

	// Failed and in-flight attempts may repeat freely.
	require.NoError(t, newImport(model.ImportFailed))
	require.NoError(t, newImport(model.ImportFailed))
	require.NoError(t, newImport(model.ImportPartial))

	require.NoError(t, newImport(model.ImportSuccess))
	assert.Error(t, newImport(model.ImportSuccess))

	// Finalizing a partial import to SUCCESS hits the same index.
	var partial model.ScheduleImport
	require.NoError(t, gdb.First(&partial, "status = ?", model.ImportPartial).Error)
	err := gdb.Model(&partial).Update("status", model.ImportSuccess).Error
	assert.Error(t, err)
}
