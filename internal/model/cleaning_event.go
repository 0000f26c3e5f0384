package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventStatus is the lifecycle state of a cleaning event.
type EventStatus string

const (
	StatusPlanned    EventStatus = "PREVISTO"
	StatusInProgress EventStatus = "EM_ANDAMENTO"
	StatusDone       EventStatus = "CONCLUIDO"
	StatusCancelled  EventStatus = "CANCELADO"
)

// Terminal reports whether no operator action may move the event further.
func (s EventStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// SLALead is how long before departure a vehicle must be released (H-1).
const SLALead = time.Hour

// CleaningEvent is one trip's cleaning record inside a schedule version.
type CleaningEvent struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ScheduleVersionID uuid.UUID   `gorm:"type:uuid;index;not null" json:"scheduleVersionId"`
	BusinessKey       string      `gorm:"size:64;index;not null" json:"businessKey"`
	VehicleID         uuid.UUID   `gorm:"type:uuid;index;not null" json:"vehicleId"`
	OperationalDate   string      `gorm:"size:10;index;not null" json:"operationalDate"`
	TripTime          string      `gorm:"size:5;not null" json:"tripTime"`
	Status            EventStatus `gorm:"size:16;index;not null" json:"status"`

	ScheduledDeparture time.Time `gorm:"not null;index" json:"scheduledDeparture"`
	SLADeadline        time.Time `gorm:"column:sla_deadline;not null" json:"slaDeadline"`

	// Informational trip fields copied from the source document.
	Class             string `gorm:"size:128" json:"class,omitempty"`
	Company           string `gorm:"size:255" json:"company,omitempty"`
	ServiceNumber     string `gorm:"size:32" json:"serviceNumber,omitempty"`
	Driver            string `gorm:"size:255" json:"driver,omitempty"`
	ClientObservation string `gorm:"type:text" json:"clientObservation,omitempty"`

	// Operation
	CleanerID            *uuid.UUID `gorm:"type:uuid;index" json:"cleanerId,omitempty"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	StartedBy            string     `gorm:"size:64" json:"startedBy,omitempty"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
	CompletedBy          string     `gorm:"size:64" json:"completedBy,omitempty"`
	CheckInterior        bool       `gorm:"not null" json:"checkInterior"`
	CheckExterior        bool       `gorm:"not null" json:"checkExterior"`
	CheckTires           bool       `gorm:"not null" json:"checkTires"`
	OperationObservation string     `gorm:"type:text" json:"operationObservation,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Vehicle *Vehicle `gorm:"foreignKey:VehicleID" json:"vehicle,omitempty"`
	Cleaner *Cleaner `gorm:"foreignKey:CleanerID" json:"cleaner,omitempty"`
	Swaps   []Swap   `gorm:"foreignKey:EventID" json:"swaps,omitempty"`
}

func (e *CleaningEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
