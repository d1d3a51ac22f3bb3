package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"gorm.io/gorm"
)

type DeviceRepository interface {
	BaseRepository[models.Device]
	List(ctx context.Context) ([]models.Device, error)
	ListEnabled(ctx context.Context, siteID *uuid.UUID, deviceIDs []uuid.UUID) ([]models.Device, error)
	ListForBackup(ctx context.Context, deviceIDs []uuid.UUID) ([]models.Device, error)
}

type deviceRepository struct {
	BaseRepository[models.Device]
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{BaseRepository: NewBaseRepository[models.Device](db), db: db}
}

func (r *deviceRepository) List(ctx context.Context) ([]models.Device, error) {
	var out []models.Device
	if err := r.db.WithContext(ctx).Preload("Site").Order("hostname ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list devices failed")
	}
	return out, nil
}

// ListEnabled selects enabled devices filtered by the intersection of the
// optional site and device-id selectors.
func (r *deviceRepository) ListEnabled(ctx context.Context, siteID *uuid.UUID, deviceIDs []uuid.UUID) ([]models.Device, error) {
	q := r.db.WithContext(ctx).Where("enabled = true")
	if siteID != nil {
		q = q.Where("site_id = ?", *siteID)
	}
	if len(deviceIDs) > 0 {
		q = q.Where("id IN ?", deviceIDs)
	}
	var out []models.Device
	if err := q.Order("hostname ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list enabled devices failed")
	}
	return out, nil
}

// ListForBackup loads the given devices together with their site and
// credential set so the orchestrator never touches the database from inside
// the fan-out.
func (r *deviceRepository) ListForBackup(ctx context.Context, deviceIDs []uuid.UUID) ([]models.Device, error) {
	var out []models.Device
	if err := r.db.WithContext(ctx).
		Preload("Site").Preload("CredentialSet").
		Where("id IN ?", deviceIDs).
		Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "load devices for backup failed")
	}
	return out, nil
}
