// Package api exports configurations from HTTPS-managed devices (PAN-OS,
// FortiOS) under a bounded concurrent budget.
package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

// Exporter runs the vendor-specific auth + export flow for one device.
type Exporter interface {
	Export(ctx context.Context, client *http.Client, target transport.Target) (string, error)
}

// Pool fans device exports out over a shared HTTP client, bounded by a
// semaphore. FIFO over the semaphore waiters; no preemption of long-running
// devices.
type Pool struct {
	client   *http.Client
	exporter Exporter
	workers  int
	timeout  time.Duration
}

// NewPool builds the pool. tlsVerify must be an explicit deployment choice:
// the target environment mixes self-signed appliances with
// properly-certified ones.
func NewPool(workers int, timeout time.Duration, tlsVerify bool) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !tlsVerify},
				MaxConnsPerHost: workers,
			},
		},
		exporter: platformExporter{},
		workers:  workers,
		timeout:  timeout,
	}
}

// Run streams one Outcome per target; the channel closes when every target
// has a terminal outcome. Cancellation aborts in-flight requests and emits
// waiting targets as skipped.
func (p *Pool) Run(ctx context.Context, targets []transport.Target) <-chan transport.Outcome {
	out := make(chan transport.Outcome)
	sem := make(chan struct{}, p.workers)

	var wg sync.WaitGroup
	go func() {
		for _, target := range targets {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out <- transport.Outcome{Target: target, Skipped: true}
				continue
			}
			wg.Add(1)
			go func(target transport.Target) {
				defer wg.Done()
				defer func() { <-sem }()
				out <- p.runOne(ctx, target)
			}(target)
		}
		wg.Wait()
		close(out)
	}()

	return out
}

func (p *Pool) runOne(ctx context.Context, target transport.Target) transport.Outcome {
	start := time.Now()
	if ctx.Err() != nil {
		return transport.Outcome{Target: target, Skipped: true}
	}

	exportCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	config, err := p.exporter.Export(exportCtx, p.client, target)
	dur := time.Since(start)
	if err != nil {
		if exportCtx.Err() == context.DeadlineExceeded || exportCtx.Err() == context.Canceled {
			err = appErr.Wrap(err, appErr.CodeTimeout, "device deadline exceeded")
		}
		logger.L().Warn("api backup failed",
			zap.String("hostname", target.Hostname),
			zap.String("platform", string(target.Platform)),
			zap.Duration("duration", dur),
			zap.Error(err),
		)
		return transport.Outcome{Target: target, Err: err, Duration: dur}
	}

	logger.L().Info("api backup ok",
		zap.String("hostname", target.Hostname),
		zap.Int("bytes", len(config)),
		zap.Duration("duration", dur),
	)
	return transport.Outcome{Target: target, Config: config, Duration: dur}
}

// platformExporter dispatches on the platform variant.
type platformExporter struct{}

func (platformExporter) Export(ctx context.Context, client *http.Client, target transport.Target) (string, error) {
	switch target.Platform {
	case models.PlatformPanOS:
		return exportPanOS(ctx, client, target)
	case models.PlatformFortiOS:
		return exportFortiOS(ctx, client, target)
	}
	return "", appErr.New(appErr.CodeProtocol, "platform has no API export flow: "+string(target.Platform))
}
