package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device is a network device inventory entry. Hostname is unique per site;
// platform is immutable for the life of the device.
type Device struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Hostname     string         `gorm:"type:varchar(255);not null;index:idx_devices_hostname_site,unique" json:"hostname" validate:"required"`
	Address      string         `gorm:"type:varchar(45);not null" json:"address" validate:"required"`
	Platform     Platform       `gorm:"type:varchar(16);index;not null" json:"platform" validate:"required,oneof=ios nxos eos dellos10 panos fortios"`
	SiteID       uuid.UUID      `gorm:"type:uuid;not null;index;index:idx_devices_hostname_site,unique" json:"site_id" validate:"required"`
	CredentialID *uuid.UUID     `gorm:"type:uuid;index" json:"credential_id"`
	Enabled      bool           `gorm:"not null;default:true;index" json:"enabled"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Site          *Site          `gorm:"foreignKey:SiteID" json:"site,omitempty"`
	CredentialSet *CredentialSet `gorm:"foreignKey:CredentialID" json:"-"`
}
