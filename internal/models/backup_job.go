package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job states. A job reaches a terminal state exactly once.
const (
	JobStateRunning  = "running"
	JobStateComplete = "complete"
	JobStateFailed   = "failed"
)

// BackupJob tracks one backup run over a selected device set. Counters move
// monotonically and only through the orchestrator's additive updates;
// completed + failed never exceeds Total.
type BackupJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TriggeredAt time.Time      `gorm:"not null;index" json:"triggered_at"`
	TriggeredBy string         `gorm:"type:varchar(255);not null" json:"triggered_by"`
	State       string         `gorm:"type:varchar(16);index;not null;default:running" json:"state"`
	Total       int            `gorm:"not null" json:"total"`
	Completed   int            `gorm:"not null;default:0" json:"completed"`
	Failed      int            `gorm:"not null;default:0" json:"failed"`
	DeviceIDs   datatypes.JSON `gorm:"type:jsonb" json:"device_ids"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`

	Results []BackupResult `gorm:"foreignKey:JobID" json:"-"`
}
