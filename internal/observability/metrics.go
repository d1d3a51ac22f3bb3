package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsStarted counts backup jobs the orchestrator has begun.
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netvault_jobs_started_total",
		Help: "Total number of backup jobs started",
	})

	// JobsTerminal counts jobs reaching a terminal state.
	JobsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netvault_jobs_terminal_total",
		Help: "Total number of backup jobs reaching a terminal state",
	}, []string{"state"})

	// DeviceResults counts per-device outcomes by result state.
	DeviceResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netvault_device_results_total",
		Help: "Total number of per-device backup results",
	}, []string{"state"})

	// DevicesInFlight tracks devices currently being backed up, per transport.
	DevicesInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netvault_devices_in_flight",
		Help: "Devices currently being backed up",
	}, []string{"transport"})

	// DeviceDuration observes per-device backup wall-clock time.
	DeviceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netvault_device_backup_duration_seconds",
		Help:    "Per-device backup duration distribution",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// CommitsTotal counts Gitea commits by result.
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netvault_repo_commits_total",
		Help: "Total number of repository commits attempted",
	}, []string{"result"})
)
