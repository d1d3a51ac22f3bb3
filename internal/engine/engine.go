// Package engine drives a backup job from start to terminal state: it fans
// devices out over the two transport pools, funnels raw configurations
// through the scrubber into the repository service, records per-device
// results, and keeps the job's counters and progress stream consistent.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steg2011/netvault/internal/creds"
	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/observability"
	"github.com/steg2011/netvault/internal/progress"
	"github.com/steg2011/netvault/internal/repository"
	"github.com/steg2011/netvault/internal/scrub"
	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
	"github.com/steg2011/netvault/pkg/utils"
)

// Pool is the device fan-out contract both transport pools satisfy.
type Pool interface {
	Run(ctx context.Context, targets []transport.Target) <-chan transport.Outcome
}

// RepoService is the slice of the Gitea client the engine depends on.
type RepoService interface {
	EnsureRepo(ctx context.Context, repoName string) error
	CommitFile(ctx context.Context, repoName, path string, content []byte, message string) (string, error)
}

// Engine orchestrates backup jobs. All database mutation during a run goes
// through the engine's single consumer loop, so the two pools never race on
// job counters.
type Engine struct {
	devices  repository.DeviceRepository
	jobs     repository.JobRepository
	results  repository.ResultRepository
	resolver *creds.Resolver
	cliPool  Pool
	apiPool  Pool
	repo     RepoService
	bus      *progress.Bus
}

// New wires an engine from its collaborators.
func New(
	devices repository.DeviceRepository,
	jobs repository.JobRepository,
	results repository.ResultRepository,
	resolver *creds.Resolver,
	cliPool, apiPool Pool,
	repo RepoService,
	bus *progress.Bus,
) *Engine {
	return &Engine{
		devices:  devices,
		jobs:     jobs,
		results:  results,
		resolver: resolver,
		cliPool:  cliPool,
		apiPool:  apiPool,
		repo:     repo,
		bus:      bus,
	}
}

// run tracks the mutable state of one job execution. It is only touched by
// the consumer goroutine.
type run struct {
	job         *models.BackupJob
	completed   int
	failed      int
	ensuredRepo map[string]error // site repo name -> EnsureRepo outcome, memoized per job
}

// Run executes one job to its terminal state. Per-device failures never
// abort the job; only an inventory load failure is fatal. Cancellation
// drains queued devices as skipped and still terminates the job as complete.
func (e *Engine) Run(ctx context.Context, jobID uuid.UUID, deviceIDs []uuid.UUID) error {
	// Database writes must survive job cancellation.
	dbCtx := context.WithoutCancel(ctx)

	var job models.BackupJob
	if err := e.jobs.GetByID(dbCtx, jobID, &job); err != nil {
		logger.L().Error("backup job not found", zap.String("job_id", jobID.String()), zap.Error(err))
		return appErr.Wrap(err, appErr.CodeFatal, "load job failed")
	}

	now := time.Now().UTC()
	if err := e.jobs.MarkStarted(dbCtx, jobID, now); err != nil {
		logger.L().Warn("mark job started failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
	observability.JobsStarted.Inc()

	r := &run{job: &job, ensuredRepo: map[string]error{}}
	e.publish(r, models.JobStateRunning, "", "")

	devices, err := e.devices.ListForBackup(dbCtx, deviceIDs)
	if err != nil {
		return e.fail(dbCtx, r, appErr.Wrap(err, appErr.CodeFatal, "load inventory failed"))
	}

	cliTargets, apiTargets := e.partition(dbCtx, r, devices)

	outcomes := make(chan transport.Outcome)
	var wg sync.WaitGroup
	for _, p := range []struct {
		pool    Pool
		targets []transport.Target
		name    string
	}{
		{e.cliPool, cliTargets, "cli"},
		{e.apiPool, apiTargets, "api"},
	} {
		if len(p.targets) == 0 {
			continue
		}
		wg.Add(1)
		go func(pool Pool, targets []transport.Target, name string) {
			defer wg.Done()
			observability.DevicesInFlight.WithLabelValues(name).Add(float64(len(targets)))
			defer observability.DevicesInFlight.WithLabelValues(name).Sub(float64(len(targets)))
			for outcome := range pool.Run(ctx, targets) {
				outcomes <- outcome
			}
		}(p.pool, p.targets, p.name)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single consumer: every database write and progress event for the job
	// flows through here, regardless of which pool produced the outcome.
	for outcome := range outcomes {
		e.handleOutcome(dbCtx, r, outcome)
	}

	if err := e.jobs.MarkTerminal(dbCtx, jobID, models.JobStateComplete, time.Now().UTC()); err != nil {
		logger.L().Warn("mark job complete failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
	observability.JobsTerminal.WithLabelValues(models.JobStateComplete).Inc()
	e.publish(r, models.JobStateComplete, "", "")
	logger.L().Info("backup job complete",
		zap.String("job_id", jobID.String()),
		zap.Int("total", r.job.Total),
		zap.Int("completed", r.completed),
		zap.Int("failed", r.failed),
	)
	return nil
}

// partition resolves credentials and splits devices by transport class.
// Devices whose credentials cannot be resolved fail immediately without a
// connection attempt.
func (e *Engine) partition(ctx context.Context, r *run, devices []models.Device) (cli, api []transport.Target) {
	for i := range devices {
		dev := &devices[i]
		c, err := e.resolver.Resolve(dev)
		if err != nil {
			e.recordFailure(ctx, r, dev.ID, dev.Hostname, err, 0)
			continue
		}
		target := transport.Target{
			DeviceID: dev.ID,
			Hostname: dev.Hostname,
			Address:  dev.Address,
			Platform: dev.Platform,
			Username: c.Username,
			Password: c.Password,
		}
		if dev.Site != nil {
			target.SiteCode = dev.Site.Code
			target.RepoName = dev.Site.RepoName
		}
		if dev.Platform.IsAPI() {
			api = append(api, target)
		} else {
			cli = append(cli, target)
		}
	}
	return cli, api
}

func (e *Engine) handleOutcome(ctx context.Context, r *run, outcome transport.Outcome) {
	switch {
	case outcome.Skipped:
		e.recordSkip(ctx, r, outcome.Target)
	case outcome.Err != nil:
		e.recordFailure(ctx, r, outcome.Target.DeviceID, outcome.Target.Hostname, outcome.Err, outcome.Duration)
	default:
		e.commitConfig(ctx, r, outcome)
	}
	if outcome.Duration > 0 {
		observability.DeviceDuration.Observe(outcome.Duration.Seconds())
	}
}

// commitConfig runs scrub -> ensure repo -> commit -> record for one raw
// configuration. Any step failing records a per-device failure and the job
// moves on.
func (e *Engine) commitConfig(ctx context.Context, r *run, outcome transport.Outcome) {
	target := outcome.Target

	text, hash := scrubSafe(outcome.Config, target.Platform, target.Hostname)

	// The previous hash is informational only: an unchanged configuration
	// is still committed, because the commit history is the record that the
	// device was checked.
	var prior models.BackupResult
	if err := e.results.GetLatestSuccess(ctx, target.DeviceID, &prior); err == nil && prior.ConfigHash == hash {
		logger.L().Debug("configuration unchanged since last backup", zap.String("hostname", target.Hostname))
	}

	ensured, seen := r.ensuredRepo[target.RepoName]
	if !seen {
		ensured = e.repo.EnsureRepo(ctx, target.RepoName)
		r.ensuredRepo[target.RepoName] = ensured
	}
	if ensured != nil {
		e.recordFailure(ctx, r, target.DeviceID, target.Hostname, ensured, outcome.Duration)
		return
	}

	message := fmt.Sprintf("backup job %s: %s", r.job.ID, target.Hostname)
	commitID, err := e.repo.CommitFile(ctx, target.RepoName, target.Hostname+".txt", []byte(text), message)
	if err != nil {
		observability.CommitsTotal.WithLabelValues("error").Inc()
		e.recordFailure(ctx, r, target.DeviceID, target.Hostname, err, outcome.Duration)
		return
	}
	observability.CommitsTotal.WithLabelValues("ok").Inc()

	result := &models.BackupResult{
		JobID:      r.job.ID,
		DeviceID:   target.DeviceID,
		State:      models.ResultSuccess,
		ConfigHash: hash,
		CommitID:   commitID,
		DurationMs: outcome.Duration.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if err := e.results.Create(ctx, result); err != nil {
		logger.L().Error("record result failed", zap.String("hostname", target.Hostname), zap.Error(err))
	}
	if err := e.jobs.IncrementCompleted(ctx, r.job.ID); err != nil {
		logger.L().Error("increment completed failed", zap.Error(err))
	}
	r.completed++
	observability.DeviceResults.WithLabelValues(models.ResultSuccess).Inc()
	e.publish(r, models.JobStateRunning, target.Hostname, models.ResultSuccess)
}

func (e *Engine) recordFailure(ctx context.Context, r *run, deviceID uuid.UUID, hostname string, cause error, dur time.Duration) {
	result := &models.BackupResult{
		JobID:      r.job.ID,
		DeviceID:   deviceID,
		State:      models.ResultFailed,
		Error:      cause.Error(),
		DurationMs: dur.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if err := e.results.Create(ctx, result); err != nil {
		logger.L().Error("record failure failed", zap.String("hostname", hostname), zap.Error(err))
	}
	if err := e.jobs.IncrementFailed(ctx, r.job.ID); err != nil {
		logger.L().Error("increment failed failed", zap.Error(err))
	}
	r.failed++
	observability.DeviceResults.WithLabelValues(models.ResultFailed).Inc()
	e.publish(r, models.JobStateRunning, hostname, models.ResultFailed)
}

func (e *Engine) recordSkip(ctx context.Context, r *run, target transport.Target) {
	result := &models.BackupResult{
		JobID:    r.job.ID,
		DeviceID: target.DeviceID,
		State:    models.ResultSkipped,
		At:       time.Now().UTC(),
	}
	if err := e.results.Create(ctx, result); err != nil {
		logger.L().Error("record skip failed", zap.String("hostname", target.Hostname), zap.Error(err))
	}
	observability.DeviceResults.WithLabelValues(models.ResultSkipped).Inc()
	e.publish(r, models.JobStateRunning, target.Hostname, models.ResultSkipped)
}

// fail terminates the job on a catastrophic orchestrator error. No
// per-device results are required in this path.
func (e *Engine) fail(ctx context.Context, r *run, cause error) error {
	logger.L().Error("backup job failed", zap.String("job_id", r.job.ID.String()), zap.Error(cause))
	if err := e.jobs.MarkTerminal(ctx, r.job.ID, models.JobStateFailed, time.Now().UTC()); err != nil {
		logger.L().Warn("mark job failed failed", zap.Error(err))
	}
	observability.JobsTerminal.WithLabelValues(models.JobStateFailed).Inc()
	e.publish(r, models.JobStateFailed, "", "")
	return cause
}

func (e *Engine) publish(r *run, state, lastDevice, lastStatus string) {
	e.bus.Publish(r.job.ID, progress.Event{
		JobID:      r.job.ID,
		Total:      r.job.Total,
		Completed:  r.completed,
		Failed:     r.failed,
		State:      state,
		LastDevice: lastDevice,
		LastStatus: lastStatus,
	})
}

// scrubSafe shields the run from a scrubber panic: normalization failing is
// a programmer error, but the backup still commits the original text.
func scrubSafe(raw string, platform models.Platform, hostname string) (text, hash string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.L().Error("scrub panicked, committing original text",
				zap.String("hostname", hostname), zap.Any("panic", rec))
			sum := utils.SumSHA256([]byte(raw))
			text, hash = raw, hex.EncodeToString(sum[:])
		}
	}()
	text, hash = scrub.Scrub(raw, platform)
	return text, hash
}
