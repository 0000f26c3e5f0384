package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vehicle is a bus identified by the number the client assigns to it.
type Vehicle struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalNumber string    `gorm:"uniqueIndex;size:32;not null" json:"externalNumber"`
	// Version whose import first referenced this vehicle, if any.
	CreatedFromVersionID *uuid.UUID `gorm:"type:uuid" json:"createdFromVersionId,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
