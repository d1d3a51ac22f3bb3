package repository

import (
	"context"

	"github.com/steg2011/netvault/internal/models"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"gorm.io/gorm"
)

type SiteRepository interface {
	BaseRepository[models.Site]
	GetByCode(ctx context.Context, code string, dest *models.Site) error
	List(ctx context.Context) ([]models.Site, error)
}

type siteRepository struct {
	BaseRepository[models.Site]
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepository{BaseRepository: NewBaseRepository[models.Site](db), db: db}
}

func (r *siteRepository) GetByCode(ctx context.Context, code string, dest *models.Site) error {
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "site not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get site by code failed")
	}
	return nil
}

func (r *siteRepository) List(ctx context.Context) ([]models.Site, error) {
	var out []models.Site
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list sites failed")
	}
	return out, nil
}
