package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/steg2011/netvault/internal/gitea"
	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/repository"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

// TaskTypeBackupRun is the asynq task type the backup engine consumes.
const TaskTypeBackupRun = "backup:run"

// Only one backup job may be running at a time: the transport pools bound
// device concurrency per job, not across jobs.
const maxRunningJobs = 1

const recentJobsLimit = 100
const deviceHistoryLimit = 5

// BackupRunPayload is the task payload that launches a job.
type BackupRunPayload struct {
	JobID     uuid.UUID   `json:"job_id"`
	DeviceIDs []uuid.UUID `json:"device_ids"`
}

// BackupService owns job lifecycle outside the engine: creation and
// dispatch, listings, per-device history, and diff retrieval.
type BackupService interface {
	CreateJob(ctx context.Context, input *CreateJobInput) (*models.BackupJob, error)
	ListJobs(ctx context.Context) ([]models.BackupJob, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackupJob, []models.BackupResult, error)
	DeviceHistory(ctx context.Context, deviceID uuid.UUID) ([]models.BackupResult, error)
	Diff(ctx context.Context, resultID uuid.UUID) (string, error)
}

// CreateJobInput selects devices as the intersection of the optional site
// and device-id selectors; both empty selects every enabled device.
type CreateJobInput struct {
	SiteID      *uuid.UUID
	DeviceIDs   []uuid.UUID
	TriggeredBy string
}

type backupService struct {
	jobs        repository.JobRepository
	results     repository.ResultRepository
	devices     repository.DeviceRepository
	gitea       *gitea.Client
	asynqClient *asynq.Client
}

func NewBackupService(
	jobs repository.JobRepository,
	results repository.ResultRepository,
	devices repository.DeviceRepository,
	giteaClient *gitea.Client,
	asynqClient *asynq.Client,
) BackupService {
	return &backupService{jobs: jobs, results: results, devices: devices, gitea: giteaClient, asynqClient: asynqClient}
}

var _ BackupService = (*backupService)(nil)

func (s *backupService) CreateJob(ctx context.Context, input *CreateJobInput) (*models.BackupJob, error) {
	devices, err := s.devices.ListEnabled(ctx, input.SiteID, input.DeviceIDs)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, appErr.New(appErr.CodeInvalid, "no devices selected for backup")
	}

	running, err := s.jobs.CountRunning(ctx)
	if err != nil {
		return nil, err
	}
	if running >= maxRunningJobs {
		return nil, appErr.New(appErr.CodeConflict, "another backup job is already running")
	}

	ids := make([]uuid.UUID, len(devices))
	for i := range devices {
		ids[i] = devices[i].ID
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal device selection failed")
	}

	job := &models.BackupJob{
		TriggeredAt: time.Now().UTC(),
		TriggeredBy: input.TriggeredBy,
		State:       models.JobStateRunning,
		Total:       len(devices),
		DeviceIDs:   datatypes.JSON(idsJSON),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(BackupRunPayload{JobID: job.ID, DeviceIDs: ids})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal task payload failed")
	}
	task := asynq.NewTask(TaskTypeBackupRun, payload)
	if _, err := s.asynqClient.EnqueueContext(ctx, task); err != nil {
		logger.L().Error("enqueue backup task failed", zap.Error(err), zap.String("job_id", job.ID.String()))
		_ = s.jobs.MarkTerminal(ctx, job.ID, models.JobStateFailed, time.Now().UTC())
		return nil, appErr.Wrap(err, appErr.CodeInternal, "enqueue backup task failed")
	}

	logger.L().Info("backup job created",
		zap.String("job_id", job.ID.String()),
		zap.Int("devices", len(devices)),
		zap.String("triggered_by", input.TriggeredBy),
	)
	return job, nil
}

func (s *backupService) ListJobs(ctx context.Context) ([]models.BackupJob, error) {
	return s.jobs.ListRecent(ctx, recentJobsLimit)
}

func (s *backupService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackupJob, []models.BackupResult, error) {
	var job models.BackupJob
	if err := s.jobs.GetByID(ctx, jobID, &job); err != nil {
		return nil, nil, err
	}
	results, err := s.results.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return &job, results, nil
}

func (s *backupService) DeviceHistory(ctx context.Context, deviceID uuid.UUID) ([]models.BackupResult, error) {
	var dev models.Device
	if err := s.devices.GetByID(ctx, deviceID, &dev); err != nil {
		return nil, err
	}
	return s.results.ListByDevice(ctx, deviceID, deviceHistoryLimit)
}

// Diff returns the unified diff between the two most recent revisions of
// the device file the result belongs to. A device with fewer than two
// committed revisions is a conflict, not an empty diff.
func (s *backupService) Diff(ctx context.Context, resultID uuid.UUID) (string, error) {
	var result models.BackupResult
	if err := s.results.GetByID(ctx, resultID, &result); err != nil {
		return "", err
	}

	devices, err := s.devices.ListForBackup(ctx, []uuid.UUID{result.DeviceID})
	if err != nil {
		return "", err
	}
	if len(devices) == 0 || devices[0].Site == nil {
		return "", appErr.New(appErr.CodeNotFound, "device site not found")
	}
	repoName := devices[0].Site.RepoName
	hostname := devices[0].Hostname

	diff, err := s.gitea.Diff(ctx, repoName, hostname+".txt")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(diff) == "" {
		// Distinguish "one revision so far" from "revisions identical in
		// their stable portions".
		history, err := s.results.ListByDevice(ctx, result.DeviceID, 20)
		if err != nil {
			return "", err
		}
		committed := 0
		for _, h := range history {
			if h.State == models.ResultSuccess {
				committed++
			}
		}
		if committed < 2 {
			return "", appErr.New(appErr.CodeConflict, "only one revision exists for this device")
		}
	}
	return diff, nil
}
