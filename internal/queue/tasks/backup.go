package tasks

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/steg2011/netvault/internal/engine"
	"github.com/steg2011/netvault/internal/services"
	"github.com/steg2011/netvault/pkg/logger"
)

// BackupTaskHandler consumes backup:run tasks and hands them to the engine.
type BackupTaskHandler struct {
	engine *engine.Engine
}

func NewBackupTaskHandler(eng *engine.Engine) *BackupTaskHandler {
	return &BackupTaskHandler{engine: eng}
}

// HandleBackupRun runs one job to its terminal state. The engine absorbs
// per-device failures itself; an error here means the job could not run at
// all, and retrying would re-run devices that already have results, so the
// task is not retried.
func (h *BackupTaskHandler) HandleBackupRun(ctx context.Context, t *asynq.Task) error {
	var p services.BackupRunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid backup task payload", zap.Error(err))
		return nil
	}

	logger.L().Info("handling backup task",
		zap.String("job_id", p.JobID.String()),
		zap.Int("devices", len(p.DeviceIDs)),
	)

	if err := h.engine.Run(ctx, p.JobID, p.DeviceIDs); err != nil {
		logger.L().Error("backup job failed fatally", zap.String("job_id", p.JobID.String()), zap.Error(err))
	}
	return nil
}
