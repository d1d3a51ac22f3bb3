package models

import (
	"time"

	"github.com/google/uuid"
)

// Per-device result states.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// BackupResult records the outcome of one device's participation in one job.
// Rows are append-only and unique per (job, device). CommitID is non-empty
// iff the result succeeded; Error is non-empty iff it failed.
type BackupResult struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JobID      uuid.UUID `gorm:"type:uuid;not null;index;index:idx_results_job_device,unique" json:"job_id"`
	DeviceID   uuid.UUID `gorm:"type:uuid;not null;index;index:idx_results_job_device,unique" json:"device_id"`
	State      string    `gorm:"type:varchar(16);index;not null" json:"state"`
	ConfigHash string    `gorm:"type:varchar(64)" json:"config_hash"`
	CommitID   string    `gorm:"type:varchar(64)" json:"commit_id"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	At         time.Time `gorm:"not null;index" json:"at"`

	Device *Device `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
}
