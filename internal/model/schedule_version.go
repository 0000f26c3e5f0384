package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DayLayout is the layout of OperationalDate keys.
const DayLayout = "2006-01-02"

// ScheduleVersion is an immutable snapshot of every trip of one operational
// date. Only IsActive ever changes after creation.
type ScheduleVersion struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OperationalDate  string    `gorm:"size:10;not null;uniqueIndex:idx_schedule_versions_date_number,priority:1" json:"operationalDate"`
	VersionNumber    int       `gorm:"not null;uniqueIndex:idx_schedule_versions_date_number,priority:2" json:"versionNumber"`
	IsActive         bool      `gorm:"not null;index" json:"isActive"`
	ScheduleImportID uuid.UUID `gorm:"type:uuid;index;not null" json:"scheduleImportId"`
	CreatedAt        time.Time `json:"createdAt"`

	// Associations
	Events []CleaningEvent `gorm:"foreignKey:ScheduleVersionID" json:"events,omitempty"`
}

func (v *ScheduleVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
