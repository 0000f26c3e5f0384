package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChangeType classifies a difference between two consecutive versions.
type ChangeType string

const (
	ChangeNew     ChangeType = "NEW"
	ChangeChanged ChangeType = "CHANGED"
	ChangeRemoved ChangeType = "REMOVED"
)

// ScheduleChangeLog is one append-only diff row between two versions of the
// same operational date.
type ScheduleChangeLog struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OperationalDate string         `gorm:"size:10;index;not null" json:"operationalDate"`
	FromVersionID   uuid.UUID      `gorm:"type:uuid;not null" json:"fromVersionId"`
	ToVersionID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"toVersionId"`
	ChangeType      ChangeType     `gorm:"size:8;not null" json:"changeType"`
	BusinessKey     string         `gorm:"size:64;index;not null" json:"businessKey"`
	VehicleID       uuid.UUID      `gorm:"type:uuid;not null" json:"vehicleId"`
	OldValues       datatypes.JSON `json:"oldValues,omitempty"`
	NewValues       datatypes.JSON `json:"newValues,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func (c *ScheduleChangeLog) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// EventSnapshot is the JSON shape stored in OldValues / NewValues.
type EventSnapshot struct {
	BusinessKey        string      `json:"businessKey"`
	VehicleID          uuid.UUID   `json:"vehicleId"`
	ScheduledDeparture time.Time   `json:"scheduledDeparture"`
	Status             EventStatus `json:"status"`
	Class              string      `json:"class,omitempty"`
	Company            string      `json:"company,omitempty"`
	ServiceNumber      string      `json:"serviceNumber,omitempty"`
	Driver             string      `json:"driver,omitempty"`
	ClientObservation  string      `json:"clientObservation,omitempty"`
}

// Snapshot captures the informational state of an event for the change log.
func (e *CleaningEvent) Snapshot() EventSnapshot {
	return EventSnapshot{
		BusinessKey:        e.BusinessKey,
		VehicleID:          e.VehicleID,
		ScheduledDeparture: e.ScheduledDeparture,
		Status:             e.Status,
		Class:              e.Class,
		Company:            e.Company,
		ServiceNumber:      e.ServiceNumber,
		Driver:             e.Driver,
		ClientObservation:  e.ClientObservation,
	}
}
