package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steg2011/netvault/internal/creds"
	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/repository"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

// InventoryService manages sites, devices, and credential sets. Credential
// passwords are sealed before they reach the repository and are never
// returned to callers.
type InventoryService interface {
	CreateSite(ctx context.Context, site *models.Site) error
	ListSites(ctx context.Context) ([]models.Site, error)
	GetSite(ctx context.Context, id uuid.UUID) (*models.Site, error)
	DeleteSite(ctx context.Context, id uuid.UUID) error

	CreateDevice(ctx context.Context, device *models.Device) error
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id uuid.UUID) error

	CreateCredentialSet(ctx context.Context, label, username, password string) (*models.CredentialSet, error)
	ListCredentialSets(ctx context.Context) ([]models.CredentialSet, error)
	DeleteCredentialSet(ctx context.Context, id uuid.UUID) error
}

type inventoryService struct {
	sites       repository.SiteRepository
	devices     repository.DeviceRepository
	credentials repository.CredentialRepository
	resolver    *creds.Resolver
}

func NewInventoryService(
	sites repository.SiteRepository,
	devices repository.DeviceRepository,
	credentials repository.CredentialRepository,
	resolver *creds.Resolver,
) InventoryService {
	return &inventoryService{sites: sites, devices: devices, credentials: credentials, resolver: resolver}
}

var _ InventoryService = (*inventoryService)(nil)

func (s *inventoryService) CreateSite(ctx context.Context, site *models.Site) error {
	return s.sites.Create(ctx, site)
}

func (s *inventoryService) ListSites(ctx context.Context) ([]models.Site, error) {
	return s.sites.List(ctx)
}

func (s *inventoryService) GetSite(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	var site models.Site
	if err := s.sites.GetByID(ctx, id, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *inventoryService) DeleteSite(ctx context.Context, id uuid.UUID) error {
	return s.sites.Delete(ctx, id)
}

func (s *inventoryService) CreateDevice(ctx context.Context, device *models.Device) error {
	if !device.Platform.Valid() {
		return appErr.New(appErr.CodeInvalid, "unknown platform: "+string(device.Platform))
	}
	var site models.Site
	if err := s.sites.GetByID(ctx, device.SiteID, &site); err != nil {
		return err
	}
	return s.devices.Create(ctx, device)
}

func (s *inventoryService) ListDevices(ctx context.Context) ([]models.Device, error) {
	return s.devices.List(ctx)
}

func (s *inventoryService) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	var device models.Device
	if err := s.devices.GetByID(ctx, id, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// UpdateDevice rejects platform changes: the platform decides a device's
// transport class and scrub rules, so history would stop lining up.
func (s *inventoryService) UpdateDevice(ctx context.Context, device *models.Device) error {
	var current models.Device
	if err := s.devices.GetByID(ctx, device.ID, &current); err != nil {
		return err
	}
	if current.Platform != device.Platform {
		return appErr.New(appErr.CodeInvalid, "device platform is immutable")
	}
	return s.devices.Update(ctx, device)
}

func (s *inventoryService) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	return s.devices.Delete(ctx, id)
}

func (s *inventoryService) CreateCredentialSet(ctx context.Context, label, username, password string) (*models.CredentialSet, error) {
	sealed, err := s.resolver.Seal(password)
	if err != nil {
		return nil, err
	}
	set := &models.CredentialSet{Label: label, Username: username, SealedPassword: sealed}
	if err := s.credentials.Create(ctx, set); err != nil {
		return nil, err
	}
	logger.L().Info("credential set created", zap.String("label", label))
	return set, nil
}

func (s *inventoryService) ListCredentialSets(ctx context.Context) ([]models.CredentialSet, error) {
	return s.credentials.List(ctx)
}

func (s *inventoryService) DeleteCredentialSet(ctx context.Context, id uuid.UUID) error {
	return s.credentials.Delete(ctx, id)
}
