package store

import (
	"time"

	"gorm.io/datatypes"
)

// UsageModel is the GORM row backing one email's usage record. History is
// kept as a JSON column so the row mirrors the flat-file wire format.
type UsageModel struct {
	Email       string         `gorm:"primaryKey"`
	CreditsUsed int            `gorm:"not null;default:0"`
	History     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time
}
