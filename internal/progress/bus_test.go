package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSubscriberSeesPublishOrder(t *testing.T) {
	bus := NewBus(time.Second)
	job := uuid.New()

	ch, cancel := bus.Subscribe(job)
	defer cancel()

	for i := 1; i <= 5; i++ {
		bus.Publish(job, Event{JobID: job, Total: 10, Completed: i, State: "running"})
	}

	for i := 1; i <= 5; i++ {
		ev := <-ch
		require.Equal(t, i, ev.Completed)
	}
}

func TestLateSubscriberGetsSnapshot(t *testing.T) {
	bus := NewBus(time.Second)
	job := uuid.New()

	bus.Publish(job, Event{JobID: job, Total: 10, Completed: 3, Failed: 1, State: "running"})

	ch, cancel := bus.Subscribe(job)
	defer cancel()

	ev := <-ch
	require.Equal(t, 3, ev.Completed)
	require.Equal(t, 1, ev.Failed)
}

func TestTerminalClosesStream(t *testing.T) {
	bus := NewBus(time.Second)
	job := uuid.New()

	ch, cancel := bus.Subscribe(job)
	defer cancel()

	bus.Publish(job, Event{JobID: job, Total: 2, Completed: 2, State: "complete"})

	ev, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "complete", ev.State)

	_, ok = <-ch
	require.False(t, ok, "stream should close after terminal event")
}

func TestSubscribeAfterTerminalWithinGrace(t *testing.T) {
	bus := NewBus(time.Minute)
	job := uuid.New()

	bus.Publish(job, Event{JobID: job, Total: 1, Completed: 1, State: "complete"})

	ch, cancel := bus.Subscribe(job)
	defer cancel()

	ev, ok := <-ch
	require.True(t, ok)
	require.True(t, ev.Terminal())

	_, ok = <-ch
	require.False(t, ok)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus(time.Second)
	job := uuid.New()

	ch, cancel := bus.Subscribe(job)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more events than the subscriber buffer, with nobody reading.
		for i := 0; i < subscriberBuffer*4; i++ {
			bus.Publish(job, Event{JobID: job, Total: 1000, Completed: i, State: "running"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The newest event must have survived the overflow drops.
	var last Event
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	require.Equal(t, subscriberBuffer*4-1, last.Completed)
}

func TestCountersMonotonicPerStream(t *testing.T) {
	bus := NewBus(time.Second)
	job := uuid.New()

	ch, cancel := bus.Subscribe(job)
	defer cancel()

	completed, failed := 0, 0
	go func() {
		for i := 0; i < 20; i++ {
			if i%3 == 0 {
				failed++
			} else {
				completed++
			}
			state := "running"
			if completed+failed == 20 {
				state = "complete"
			}
			bus.Publish(job, Event{JobID: job, Total: 20, Completed: completed, Failed: failed, State: state})
		}
	}()

	prevC, prevF := -1, -1
	for ev := range ch {
		require.GreaterOrEqual(t, ev.Completed, prevC)
		require.GreaterOrEqual(t, ev.Failed, prevF)
		prevC, prevF = ev.Completed, ev.Failed
	}
}
