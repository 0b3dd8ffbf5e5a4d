package model

import (
	"time"

	"gorm.io/datatypes"
)

// PriorityProfile is a named hostile-type → kill-priority table.
// Priorities is a JSON object keyed by unit type id.
type PriorityProfile struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description string         `gorm:"size:255" json:"description"`
	Priorities  datatypes.JSON `gorm:"not null" json:"priorities"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
