package domain

import "time"

type Machine struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	MachineID string `gorm:"uniqueIndex;not null;size:64"`

	SerialNumber string `gorm:"size:64"`
	Hostname     string `gorm:"size:255"`
	OSVersion    string `gorm:"size:32"`
	OSBuild      string `gorm:"size:32"`
	AgentVersion string `gorm:"size:32"`
	ClientMode   string `gorm:"size:16"`

	// RuleCursor is the id of the last rule delivered to this machine; rule
	// download resumes after it.
	RuleCursor uint64 `gorm:"not null;default:0"`

	LastPreflightSync *time.Time `json:"last_preflight_sync,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime"`
}
