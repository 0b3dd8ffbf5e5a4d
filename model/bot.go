package model

import "time"

// Bot status values.
const (
	BotStatusDisabled = 0
	BotStatusActive   = 1
)

// Bot is a registered client allowed to request combat decisions.
type Bot struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string     `gorm:"uniqueIndex;size:32;not null" json:"name"`
	KeyHash     string     `gorm:"size:64;not null" json:"-"`
	Status      int        `gorm:"default:1" json:"status"`
	Profile     string     `gorm:"size:64" json:"profile"` // default priority profile
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:45" json:"last_login_ip"`
}

// OnlineBotsKey is the cache set holding the ids of bots with a live
// WebSocket connection.
const OnlineBotsKey = "bots:online"
