package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/steg2011/netvault/internal/api/types"
	"github.com/steg2011/netvault/internal/services"
	appErr "github.com/steg2011/netvault/pkg/errors"
)

type BackupsHandler struct {
	svc      services.BackupService
	validate *validator.Validate
}

func NewBackupsHandler(svc services.BackupService) *BackupsHandler {
	return &BackupsHandler{svc: svc, validate: validator.New()}
}

func (h *BackupsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req types.BackupJobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	input := &services.CreateJobInput{TriggeredBy: req.TriggeredBy}
	if input.TriggeredBy == "" {
		input.TriggeredBy = "api"
	}
	if req.SiteID != "" {
		id, err := uuid.Parse(req.SiteID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid site_id")
			return
		}
		input.SiteID = &id
	}
	for _, raw := range req.DeviceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid device id: "+raw)
			return
		}
		input.DeviceIDs = append(input.DeviceIDs, id)
	}

	job, err := h.svc.CreateJob(r.Context(), input)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: map[string]string{"job_id": job.ID.String()}})
}

func (h *BackupsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: jobs})
}

func (h *BackupsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, results, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	status := http.StatusOK
	if job.State == "failed" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, types.APIResponse{Success: job.State != "failed", Data: map[string]any{
		"job":     job,
		"results": results,
	}})
}

func (h *BackupsHandler) DeviceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid device id")
		return
	}
	results, err := h.svc.DeviceHistory(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: results})
}

func (h *BackupsHandler) Diff(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid result id")
		return
	}
	diff, err := h.svc.Diff(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(diff))
}

// statusFor maps service error codes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case appErr.IsCode(err, appErr.CodeInvalid):
		return http.StatusBadRequest
	case appErr.IsCode(err, appErr.CodeNotFound):
		return http.StatusNotFound
	case appErr.IsCode(err, appErr.CodeConflict), appErr.IsCode(err, appErr.CodeAlreadyExists):
		return http.StatusConflict
	case appErr.IsCode(err, appErr.CodeUnauthorized):
		return http.StatusUnauthorized
	case appErr.IsCode(err, appErr.CodeForbidden):
		return http.StatusForbidden
	case appErr.IsCode(err, appErr.CodeUnavailable), appErr.IsCode(err, appErr.CodeRepoUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: types.FromAppError(err)})
}

func writeErrorStr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: &types.APIError{Code: "invalid", Message: msg}})
}
