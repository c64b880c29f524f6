package research

import (
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const eventBuffer = 256

// RunHandle is the caller's view of a started run.
type RunHandle struct {
	ID    uuid.UUID
	Topic string

	events     chan Event
	done       chan struct{}
	subscribed atomic.Bool
	detached   atomic.Bool
	cancelOnce sync.Once

	report string
	err    error
}

func newRunHandle(topic string) *RunHandle {
	return &RunHandle{
		ID:     uuid.New(),
		Topic:  topic,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns the run's progress stream. Only the first iteration
// receives events; later ones yield nothing. Stopping the iteration early
// detaches the caller like Cancel.
func (h *RunHandle) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !h.subscribed.CompareAndSwap(false, true) {
			return
		}
		for ev := range h.events {
			if h.detached.Load() {
				return
			}
			if !yield(ev) {
				h.Cancel()
				return
			}
		}
	}
}

// Cancel detaches the caller. Remaining events are dropped; work already in
// flight is not interrupted.
func (h *RunHandle) Cancel() {
	h.cancelOnce.Do(func() {
		h.detached.Store(true)
		go func() {
			for range h.events {
			}
		}()
	})
}

// Done is closed when the run has finished.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes and returns its report. When nobody
// subscribed to Events, the stream is consumed and discarded.
func (h *RunHandle) Wait() (string, error) {
	if h.subscribed.CompareAndSwap(false, true) {
		for range h.events {
		}
	}
	<-h.done
	return h.report, h.err
}

func (h *RunHandle) send(ev Event) {
	if h.detached.Load() {
		return
	}
	h.events <- ev
}

// finish emits the terminal event and closes the stream.
func (h *RunHandle) finish(report string, err error, percent float64) {
	h.report, h.err = report, err
	if err != nil {
		h.send(Event{Type: EventError, Message: "Research failed", Percent: percent, Error: err.Error()})
	} else {
		h.send(Event{Type: EventDone, Message: "Research complete", Percent: 100, Report: report})
	}
	close(h.events)
	close(h.done)
}

var errPanic = errors.New("research run panicked")
