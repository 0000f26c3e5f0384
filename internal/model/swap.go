package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SwapReason explains why a vehicle was substituted.
type SwapReason string

const (
	SwapBreakdown   SwapReason = "QUEBRA"
	SwapMaintenance SwapReason = "MANUT"
	SwapOther       SwapReason = "OUTROS"
)

// Valid reports whether r is one of the known reasons.
func (r SwapReason) Valid() bool {
	switch r {
	case SwapBreakdown, SwapMaintenance, SwapOther:
		return true
	}
	return false
}

// Swap is an append-only record of a vehicle substitution on an event.
type Swap struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EventID              uuid.UUID  `gorm:"type:uuid;index;not null" json:"eventId"`
	OriginalVehicleID    uuid.UUID  `gorm:"type:uuid;not null" json:"originalVehicleId"`
	ReplacementVehicleID uuid.UUID  `gorm:"type:uuid;not null" json:"replacementVehicleId"`
	Reason               SwapReason `gorm:"size:16;not null" json:"reason"`
	Note                 string     `gorm:"type:text" json:"note,omitempty"`
	CreatedBy            string     `gorm:"size:64;not null" json:"createdBy"`
	CreatedAt            time.Time  `json:"createdAt"`

	// Associations
	OriginalVehicle    *Vehicle `gorm:"foreignKey:OriginalVehicleID" json:"originalVehicle,omitempty"`
	ReplacementVehicle *Vehicle `gorm:"foreignKey:ReplacementVehicleID" json:"replacementVehicle,omitempty"`
}

func (s *Swap) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
