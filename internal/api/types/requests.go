package types

type SiteCreateRequest struct {
	Code     string `json:"code" validate:"required,max=50"`
	Name     string `json:"name" validate:"required,max=255"`
	RepoName string `json:"repo_name" validate:"required,max=255"`
}

type DeviceCreateRequest struct {
	Hostname     string `json:"hostname" validate:"required,max=255"`
	Address      string `json:"address" validate:"required,max=45"`
	Platform     string `json:"platform" validate:"required,oneof=ios nxos eos dellos10 panos fortios"`
	SiteID       string `json:"site_id" validate:"required,uuid4"`
	CredentialID string `json:"credential_id" validate:"omitempty,uuid4"`
	Enabled      *bool  `json:"enabled"`
}

type DeviceUpdateRequest struct {
	Address      string `json:"address" validate:"omitempty,max=45"`
	CredentialID string `json:"credential_id" validate:"omitempty,uuid4"`
	Enabled      *bool  `json:"enabled"`
}

type CredentialSetCreateRequest struct {
	Label    string `json:"label" validate:"required,max=255"`
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
}

type BackupJobCreateRequest struct {
	SiteID      string   `json:"site_id" validate:"omitempty,uuid4"`
	DeviceIDs   []string `json:"device_ids" validate:"omitempty,dive,uuid4"`
	TriggeredBy string   `json:"triggered_by" validate:"omitempty,max=255"`
}
