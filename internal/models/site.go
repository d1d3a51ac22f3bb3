package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Site represents a physical network location. Each site owns one Gitea
// repository holding a file per device. Code and RepoName are treated as
// immutable once a backup has referenced them.
type Site struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Code      string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"code" validate:"required,max=50"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	RepoName  string         `gorm:"type:varchar(255);not null" json:"repo_name" validate:"required"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Devices []Device `gorm:"foreignKey:SiteID" json:"-"`
}
