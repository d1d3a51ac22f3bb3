package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"gorm.io/gorm"
)

type JobRepository interface {
	BaseRepository[models.BackupJob]
	ListRecent(ctx context.Context, limit int) ([]models.BackupJob, error)
	CountRunning(ctx context.Context) (int64, error)
	MarkStarted(ctx context.Context, jobID uuid.UUID, at time.Time) error
	MarkTerminal(ctx context.Context, jobID uuid.UUID, state string, at time.Time) error
	IncrementCompleted(ctx context.Context, jobID uuid.UUID) error
	IncrementFailed(ctx context.Context, jobID uuid.UUID) error
}

type jobRepository struct {
	BaseRepository[models.BackupJob]
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{BaseRepository: NewBaseRepository[models.BackupJob](db), db: db}
}

func (r *jobRepository) ListRecent(ctx context.Context, limit int) ([]models.BackupJob, error) {
	var out []models.BackupJob
	if err := r.db.WithContext(ctx).Order("triggered_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list jobs failed")
	}
	return out, nil
}

func (r *jobRepository) CountRunning(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.BackupJob{}).Where("state = ?", models.JobStateRunning).Count(&n).Error; err != nil {
		return 0, appErr.Wrap(err, appErr.CodeInternal, "count running jobs failed")
	}
	return n, nil
}

func (r *jobRepository) MarkStarted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.BackupJob{}).Where("id = ?", jobID).Update("started_at", at)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "mark job started failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "job not found")
	}
	return nil
}

// MarkTerminal moves a running job to its terminal state. The state guard
// makes the transition happen exactly once.
func (r *jobRepository) MarkTerminal(ctx context.Context, jobID uuid.UUID, state string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.BackupJob{}).
		Where("id = ? AND state = ?", jobID, models.JobStateRunning).
		Updates(map[string]any{"state": state, "completed_at": at})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "mark job terminal failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeConflict, "job already terminal or not found")
	}
	return nil
}

// Counter updates are additive expressions so they stay correct under
// concurrent writers.
func (r *jobRepository) IncrementCompleted(ctx context.Context, jobID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.BackupJob{}).Where("id = ?", jobID).
		Update("completed", gorm.Expr("completed + 1"))
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "increment completed failed")
	}
	return nil
}

func (r *jobRepository) IncrementFailed(ctx context.Context, jobID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.BackupJob{}).Where("id = ?", jobID).
		Update("failed", gorm.Expr("failed + 1"))
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "increment failed counter failed")
	}
	return nil
}
