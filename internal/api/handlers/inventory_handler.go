package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/steg2011/netvault/internal/api/types"
	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/services"
)

type InventoryHandler struct {
	svc      services.InventoryService
	validate *validator.Validate
}

func NewInventoryHandler(svc services.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc, validate: validator.New()}
}

// ── sites ──

func (h *InventoryHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req types.SiteCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	site := &models.Site{Code: req.Code, Name: req.Name, RepoName: req.RepoName}
	if err := h.svc.CreateSite(r.Context(), site); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: site})
}

func (h *InventoryHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.svc.ListSites(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: sites})
}

func (h *InventoryHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid site id")
		return
	}
	if err := h.svc.DeleteSite(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

// ── devices ──

func (h *InventoryHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req types.DeviceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid site_id")
		return
	}
	device := &models.Device{
		Hostname: req.Hostname,
		Address:  req.Address,
		Platform: models.Platform(req.Platform),
		SiteID:   siteID,
		Enabled:  true,
	}
	if req.Enabled != nil {
		device.Enabled = *req.Enabled
	}
	if req.CredentialID != "" {
		credID, err := uuid.Parse(req.CredentialID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid credential_id")
			return
		}
		device.CredentialID = &credID
	}
	if err := h.svc.CreateDevice(r.Context(), device); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: device})
}

func (h *InventoryHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.ListDevices(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: devices})
}

func (h *InventoryHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid device id")
		return
	}
	device, err := h.svc.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: device})
}

func (h *InventoryHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid device id")
		return
	}
	var req types.DeviceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	device, err := h.svc.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.Address != "" {
		device.Address = req.Address
	}
	if req.Enabled != nil {
		device.Enabled = *req.Enabled
	}
	if req.CredentialID != "" {
		credID, err := uuid.Parse(req.CredentialID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid credential_id")
			return
		}
		device.CredentialID = &credID
	}
	if err := h.svc.UpdateDevice(r.Context(), device); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: device})
}

func (h *InventoryHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid device id")
		return
	}
	if err := h.svc.DeleteDevice(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

// ── credential sets ──

func (h *InventoryHandler) CreateCredentialSet(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialSetCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	set, err := h.svc.CreateCredentialSet(r.Context(), req.Label, req.Username, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: set})
}

func (h *InventoryHandler) ListCredentialSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.svc.ListCredentialSets(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: sets})
}

func (h *InventoryHandler) DeleteCredentialSet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid credential id")
		return
	}
	if err := h.svc.DeleteCredentialSet(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
