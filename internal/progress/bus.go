// Package progress implements the per-job broadcast channel that fans job
// counter updates out to an arbitrary number of subscribers without ever
// blocking the orchestrator.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one progress update for a job. LastDevice/LastStatus describe the
// device outcome that produced the event and are empty on the initial and
// terminal snapshots.
type Event struct {
	JobID      uuid.UUID `json:"job_id"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	State      string    `json:"state"`
	LastDevice string    `json:"last_device,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
}

// Terminal reports whether the event's state will not change again.
func (e Event) Terminal() bool {
	return e.State == "complete" || e.State == "failed"
}

const subscriberBuffer = 64

// DefaultGrace is how long a terminated job's channel stays subscribable so
// reconnecting UIs can still observe the final event.
const DefaultGrace = 30 * time.Second

type subscriber struct {
	ch chan Event
}

type jobChannel struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest Event
	seeded bool
	closed bool
}

// Bus is the process-wide registry of per-job channels. Entries are created
// on first publish or first subscribe and garbage-collected one grace window
// after the job terminates.
type Bus struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*jobChannel
	grace time.Duration
}

// NewBus creates a bus with the given post-terminal grace window.
func NewBus(grace time.Duration) *Bus {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Bus{jobs: make(map[uuid.UUID]*jobChannel), grace: grace}
}

func (b *Bus) channel(jobID uuid.UUID) *jobChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	jc, ok := b.jobs[jobID]
	if !ok {
		jc = &jobChannel{subs: make(map[*subscriber]struct{})}
		b.jobs[jobID] = jc
	}
	return jc
}

// Publish delivers an event to every subscriber of the job. It never blocks:
// a subscriber whose buffer is full loses its oldest undelivered event. A
// terminal event closes all subscriber streams and schedules the job entry
// for removal after the grace window.
func (b *Bus) Publish(jobID uuid.UUID, ev Event) {
	jc := b.channel(jobID)

	jc.mu.Lock()
	if jc.closed {
		jc.mu.Unlock()
		return
	}
	jc.latest = ev
	jc.seeded = true
	for s := range jc.subs {
		for {
			select {
			case s.ch <- ev:
			default:
				// Drop the oldest queued event to make room.
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
	terminal := ev.Terminal()
	if terminal {
		jc.closed = true
		for s := range jc.subs {
			close(s.ch)
		}
		jc.subs = make(map[*subscriber]struct{})
	}
	jc.mu.Unlock()

	if terminal {
		time.AfterFunc(b.grace, func() {
			b.mu.Lock()
			delete(b.jobs, jobID)
			b.mu.Unlock()
		})
	}
}

// Subscribe returns a stream of events for the job. The stream starts with
// the latest snapshot when one exists, so late subscribers immediately see
// current counters; a subscription made after the job terminated receives
// the terminal event and is closed. The returned cancel func releases the
// subscription; it is safe to call after the stream closed.
func (b *Bus) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	jc := b.channel(jobID)

	s := &subscriber{ch: make(chan Event, subscriberBuffer)}

	jc.mu.Lock()
	if jc.seeded {
		s.ch <- jc.latest
	}
	if jc.closed {
		close(s.ch)
		jc.mu.Unlock()
		return s.ch, func() {}
	}
	jc.subs[s] = struct{}{}
	jc.mu.Unlock()

	cancel := func() {
		jc.mu.Lock()
		if _, ok := jc.subs[s]; ok {
			delete(jc.subs, s)
			close(s.ch)
		}
		jc.mu.Unlock()
	}
	return s.ch, cancel
}
