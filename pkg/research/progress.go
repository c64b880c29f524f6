package research

import (
	"log/slog"
	"math"
	"sync"
)

// EventType distinguishes progress updates from the terminal events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one entry of a run's progress stream. The stream ends with
// exactly one EventDone or EventError.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Percent float64   `json:"percent"`
	Report  string    `json:"report,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Progress is the single writer of a run's progress events. Percentages
// never decrease except through Reset.
type Progress struct {
	mu     sync.Mutex
	last   float64
	emit   func(Event)
	logger *slog.Logger
}

func newProgress(emit func(Event), logger *slog.Logger) *Progress {
	return &Progress{emit: emit, logger: logger}
}

// Reset starts the stream over at 0.
func (p *Progress) Reset(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = 0
	p.emit(Event{Type: EventProgress, Message: message, Percent: 0})
}

// Report emits message at percent. Values below the last emitted percentage
// are dropped and reported as false.
func (p *Progress) Report(message string, percent float64) bool {
	percent = math.Round(min(max(percent, 0), 100)*10) / 10

	p.mu.Lock()
	defer p.mu.Unlock()
	if percent < p.last {
		p.logger.Warn("Ignoring decreasing progress update", "message", message, "percent", percent, "last", p.last)
		return false
	}
	p.last = percent
	p.emit(Event{Type: EventProgress, Message: message, Percent: percent})
	return true
}

// Last returns the most recent percentage.
func (p *Progress) Last() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// band is the slice of the progress bar owned by one step.
type band struct {
	from, to float64
}

// at returns the percentage at fraction f of the span.
func (s band) at(f float64) float64 {
	return s.from + (s.to-s.from)*min(max(f, 0), 1)
}

// sub returns the part of s between fractions a and b.
func (s band) sub(a, b float64) band {
	return band{from: s.at(a), to: s.at(b)}
}

// split returns the i-th of n equal parts of s.
func (s band) split(i, n int) band {
	if n <= 0 {
		return s
	}
	return s.sub(float64(i)/float64(n), float64(i+1)/float64(n))
}
