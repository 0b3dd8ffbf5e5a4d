package model

import (
	"time"

	"gorm.io/datatypes"
)

// DecisionLog records one group's assessment and the actions issued for it
// on one tick.
type DecisionLog struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID        string         `gorm:"index:idx_decision_trace;size:36" json:"trace_id"`
	BotID          *int64         `gorm:"index:idx_decision_bot" json:"bot_id"`
	GameLoop       int            `gorm:"not null" json:"game_loop"`
	GroupName      string         `gorm:"size:64" json:"group_name"`
	MoveType       string         `gorm:"size:32" json:"move_type"`
	Profile        string         `gorm:"size:64" json:"profile"`
	ReadyRatio     float64        `json:"ready_ratio"`
	EngageRatio    float64        `json:"engage_ratio"`
	CanEngageRatio float64        `json:"can_engage_ratio"`
	UnitCount      int            `json:"unit_count"`
	EnemiesNearby  int            `json:"enemies_nearby"`
	Actions        datatypes.JSON `json:"actions"`
	Error          string         `gorm:"type:text" json:"error"`
	DurationUs     int64          `json:"duration_us"`
	CreatedAt      time.Time      `gorm:"index:idx_decision_created;autoCreateTime:milli" json:"created_at"`
}
