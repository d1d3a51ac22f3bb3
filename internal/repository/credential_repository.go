package repository

import (
	"context"

	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"gorm.io/gorm"
)

type CredentialRepository interface {
	BaseRepository[models.CredentialSet]
	GetByLabel(ctx context.Context, label string, dest *models.CredentialSet) error
	List(ctx context.Context) ([]models.CredentialSet, error)
}

type credentialRepository struct {
	BaseRepository[models.CredentialSet]
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{BaseRepository: NewBaseRepository[models.CredentialSet](db), db: db}
}

func (r *credentialRepository) GetByLabel(ctx context.Context, label string, dest *models.CredentialSet) error {
	if err := r.db.WithContext(ctx).Where("label = ?", label).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "credential set not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get credential set by label failed")
	}
	return nil
}

func (r *credentialRepository) List(ctx context.Context) ([]models.CredentialSet, error) {
	var out []models.CredentialSet
	if err := r.db.WithContext(ctx).Order("label ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list credential sets failed")
	}
	return out, nil
}
