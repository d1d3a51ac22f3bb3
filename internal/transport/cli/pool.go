// Package cli runs show-running-config commands over SSH terminal sessions
// under a bounded worker budget.
package cli

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steg2011/netvault/internal/transport"
	appErr "github.com/steg2011/netvault/pkg/errors"
	"github.com/steg2011/netvault/pkg/logger"
)

// Fetcher retrieves the raw running configuration of one terminal device.
type Fetcher interface {
	Fetch(ctx context.Context, target transport.Target) (string, error)
}

// Pool executes fetches with a fixed number of workers over a FIFO intake
// queue. Worker failures never shrink the pool.
type Pool struct {
	fetcher Fetcher
	workers int
	timeout time.Duration
}

// NewPool builds a pool of the given size with a per-device wall-clock
// timeout covering connect and read.
func NewPool(fetcher Fetcher, workers int, timeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{fetcher: fetcher, workers: workers, timeout: timeout}
}

// Run streams one Outcome per target. Up to the pool's worker count of
// devices are in flight at any moment; the rest wait in FIFO order. On
// cancellation, queued targets are emitted as skipped and in-flight sessions
// are torn down by their context. The returned channel closes once every
// target has a terminal outcome.
func (p *Pool) Run(ctx context.Context, targets []transport.Target) <-chan transport.Outcome {
	out := make(chan transport.Outcome)
	queue := make(chan transport.Target)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range queue {
				out <- p.runOne(ctx, target)
			}
		}()
	}

	skipped := make(chan struct{})
	go func() {
		defer close(queue)
		for i, target := range targets {
			select {
			case queue <- target:
			case <-ctx.Done():
				for _, rest := range targets[i:] {
					out <- transport.Outcome{Target: rest, Skipped: true}
				}
				close(skipped)
				return
			}
		}
		close(skipped)
	}()

	go func() {
		wg.Wait()
		<-skipped
		close(out)
	}()

	return out
}

func (p *Pool) runOne(ctx context.Context, target transport.Target) transport.Outcome {
	start := time.Now()
	if ctx.Err() != nil {
		return transport.Outcome{Target: target, Skipped: true}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	config, err := p.fetcher.Fetch(fetchCtx, target)
	dur := time.Since(start)
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded || fetchCtx.Err() == context.Canceled {
			err = appErr.Wrap(err, appErr.CodeTimeout, "device deadline exceeded")
		}
		logger.L().Warn("cli backup failed",
			zap.String("hostname", target.Hostname),
			zap.String("platform", string(target.Platform)),
			zap.Duration("duration", dur),
			zap.Error(err),
		)
		return transport.Outcome{Target: target, Err: err, Duration: dur}
	}

	logger.L().Info("cli backup ok",
		zap.String("hostname", target.Hostname),
		zap.Int("bytes", len(config)),
		zap.Duration("duration", dur),
	)
	return transport.Outcome{Target: target, Config: config, Duration: dur}
}
