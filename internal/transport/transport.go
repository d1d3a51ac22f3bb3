// Package transport defines the device fan-out contract shared by the
// terminal (SSH) and API (HTTPS) worker pools.
package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/steg2011/netvault/internal/models"
)

// Target is a plain snapshot of everything a pool worker needs to back up
// one device. It carries resolved credentials, so instances must stay inside
// the scope of a single backup and never be logged or serialized.
type Target struct {
	DeviceID uuid.UUID
	Hostname string
	Address  string
	Platform models.Platform
	Username string
	Password string
	SiteCode string
	RepoName string
}

// Outcome is the terminal result of one device's fetch. Exactly one of
// Config, Err, or Skipped describes what happened.
type Outcome struct {
	Target   Target
	Config   string
	Err      error
	Skipped  bool
	Duration time.Duration
}
