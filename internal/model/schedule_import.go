package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceType classifies the payload of an import.
type SourceType string

const (
	SourcePDF  SourceType = "PDF"
	SourceXLSX SourceType = "XLSX"
	SourceCSV  SourceType = "CSV"
	SourceAPI  SourceType = "API"
)

// ImportStatus is the outcome of an import attempt.
type ImportStatus string

const (
	ImportPartial ImportStatus = "PARTIAL"
	ImportSuccess ImportStatus = "SUCCESS"
	ImportFailed  ImportStatus = "FAILED"
)

// ScheduleImport records the provenance of one ingestion attempt. It is
// created PARTIAL and finalized to SUCCESS or FAILED exactly once.
type ScheduleImport struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SourceType       SourceType   `gorm:"size:8;not null" json:"sourceType"`
	OriginalFilename string       `gorm:"size:255" json:"originalFilename"`
	ContentHash      string       `gorm:"size:64;index;not null" json:"contentHash"`
	Status           ImportStatus `gorm:"size:8;index;not null" json:"status"`
	RecordsCountRaw  int          `gorm:"not null" json:"recordsCountRaw"`
	ErrorDetails     string       `gorm:"type:text" json:"errorDetails,omitempty"`
	ImportedBy       string       `gorm:"size:64;not null" json:"importedBy"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func (i *ScheduleImport) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
