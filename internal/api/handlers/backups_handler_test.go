package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/steg2011/netvault/internal/api/types"
	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/services"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by middleware and services)
	_, err := logger.Init("error", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// Mock implementations
type mockBackupService struct {
	mock.Mock
}

func (m *mockBackupService) CreateJob(ctx context.Context, input *services.CreateJobInput) (*models.BackupJob, error) {
	args := m.Called(ctx, input)
	if v := args.Get(0); v != nil {
		return v.(*models.BackupJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackupService) ListJobs(ctx context.Context) ([]models.BackupJob, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]models.BackupJob), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackupService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackupJob, []models.BackupResult, error) {
	args := m.Called(ctx, jobID)
	var job *models.BackupJob
	var results []models.BackupResult
	if v := args.Get(0); v != nil {
		job = v.(*models.BackupJob)
	}
	if v := args.Get(1); v != nil {
		results = v.([]models.BackupResult)
	}
	return job, results, args.Error(2)
}

func (m *mockBackupService) DeviceHistory(ctx context.Context, deviceID uuid.UUID) ([]models.BackupResult, error) {
	args := m.Called(ctx, deviceID)
	if v := args.Get(0); v != nil {
		return v.([]models.BackupResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackupService) Diff(ctx context.Context, resultID uuid.UUID) (string, error) {
	args := m.Called(ctx, resultID)
	return args.String(0), args.Error(1)
}

func routerFor(h *BackupsHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/backups/jobs", h.CreateJob)
	r.Get("/api/backups/jobs/{id}", h.GetJob)
	r.Get("/api/backups/diff/{id}", h.Diff)
	return r
}

func TestCreateJobReturns201(t *testing.T) {
	svc := new(mockBackupService)
	job := &models.BackupJob{ID: uuid.New(), State: models.JobStateRunning, Total: 3}
	svc.On("CreateJob", mock.Anything, mock.Anything).Return(job, nil)

	body, _ := json.Marshal(types.BackupJobCreateRequest{TriggeredBy: "tester"})
	req := httptest.NewRequest(http.MethodPost, "/api/backups/jobs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	routerFor(NewBackupsHandler(svc)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	require.Equal(t, job.ID.String(), data["job_id"])
}

func TestCreateJobEmptySelectionIs400(t *testing.T) {
	svc := new(mockBackupService)
	svc.On("CreateJob", mock.Anything, mock.Anything).
		Return(nil, appErr.New(appErr.CodeInvalid, "no devices selected for backup"))

	body, _ := json.Marshal(types.BackupJobCreateRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/backups/jobs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	routerFor(NewBackupsHandler(svc)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateJobConcurrentLimitIs409(t *testing.T) {
	svc := new(mockBackupService)
	svc.On("CreateJob", mock.Anything, mock.Anything).
		Return(nil, appErr.New(appErr.CodeConflict, "another backup job is already running"))

	body, _ := json.Marshal(types.BackupJobCreateRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/backups/jobs", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	routerFor(NewBackupsHandler(svc)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestGetJobNotFoundIs404(t *testing.T) {
	svc := new(mockBackupService)
	svc.On("GetJob", mock.Anything, mock.Anything).
		Return(nil, nil, appErr.New(appErr.CodeNotFound, "entity not found"))

	req := httptest.NewRequest(http.MethodGet, "/api/backups/jobs/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	routerFor(NewBackupsHandler(svc)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDiffReturnsPlainText(t *testing.T) {
	svc := new(mockBackupService)
	svc.On("Diff", mock.Anything, mock.Anything).
		Return("--- a/core-1.txt\n+++ b/core-1.txt\n-old\n+new\n", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/backups/diff/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	routerFor(NewBackupsHandler(svc)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, rr.Body.String(), "+new")
}

func TestDiffSingleRevisionIs409(t *testing.T) {
	svc := new(mockBackupService)
	svc.On("Diff", mock.Anything, mock.Anything).
		Return("", appErr.New(appErr.CodeConflict, "only one revision exists for this device"))

	req := httptest.NewRequest(http.MethodGet, "/api/backups/diff/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	routerFor(NewBackupsHandler(svc)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
}
