package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"gorm.io/gorm"
)

type ResultRepository interface {
	BaseRepository[models.BackupResult]
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.BackupResult, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]models.BackupResult, error)
	GetLatestSuccess(ctx context.Context, deviceID uuid.UUID, dest *models.BackupResult) error
}

type resultRepository struct {
	BaseRepository[models.BackupResult]
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{BaseRepository: NewBaseRepository[models.BackupResult](db), db: db}
}

func (r *resultRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.BackupResult, error) {
	var out []models.BackupResult
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("at ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list results by job failed")
	}
	return out, nil
}

func (r *resultRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]models.BackupResult, error) {
	var out []models.BackupResult
	if err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list results by device failed")
	}
	return out, nil
}

func (r *resultRepository) GetLatestSuccess(ctx context.Context, deviceID uuid.UUID, dest *models.BackupResult) error {
	if err := r.db.WithContext(ctx).
		Where("device_id = ? AND state = ?", deviceID, models.ResultSuccess).
		Order("at DESC").First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no prior successful result")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get latest success failed")
	}
	return nil
}
