package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CredentialSet stores a device login. The password is sealed with the
// process-wide fernet key before it reaches this row and is only unsealed
// inside a single device's backup scope.
type CredentialSet struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Label          string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"label" validate:"required"`
	Username       string         `gorm:"type:varchar(255);not null" json:"username" validate:"required"`
	SealedPassword string         `gorm:"type:text;not null" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
