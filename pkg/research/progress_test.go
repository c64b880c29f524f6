package research

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestProgressRejectsDecrease(t *testing.T) {
	r := &recorder{}
	p := newProgress(r.emit, quietLogger())

	p.Reset("start")
	assert.True(t, p.Report("a", 10))
	assert.False(t, p.Report("b", 9.9))
	assert.True(t, p.Report("c", 10))
	assert.True(t, p.Report("d", 150))
	assert.Equal(t, 100.0, p.Last())

	percents := make([]float64, 0, len(r.events))
	for _, ev := range r.events {
		percents = append(percents, ev.Percent)
	}
	assert.Equal(t, []float64{0, 10, 10, 100}, percents)

	p.Reset("again")
	assert.Zero(t, p.Last())
}

func TestProgressRounds(t *testing.T) {
	r := &recorder{}
	p := newProgress(r.emit, quietLogger())
	p.Report("x", 33.333)
	p.Report("negative", -5)
	assert.Equal(t, 33.3, r.events[0].Percent)
	assert.Len(t, r.events, 1)
}

func TestBand(t *testing.T) {
	b := band{from: 10, to: 50}
	assert.Equal(t, 10.0, b.at(0))
	assert.Equal(t, 30.0, b.at(0.5))
	assert.Equal(t, 50.0, b.at(2))
	assert.Equal(t, band{from: 14, to: 42}, b.sub(0.1, 0.8))
	assert.Equal(t, band{from: 20, to: 30}, b.split(1, 4))
	assert.Equal(t, b, b.split(0, 0))
}

func TestProgressProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("emitted percentages never decrease", prop.ForAll(
		func(values []float64) bool {
			r := &recorder{}
			p := newProgress(r.emit, quietLogger())
			for _, v := range values {
				p.Report("step", v)
			}
			for i := 1; i < len(r.events); i++ {
				if r.events[i].Percent < r.events[i-1].Percent {
					return false
				}
			}
			for _, ev := range r.events {
				if ev.Percent < 0 || ev.Percent > 100 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-20, 120)),
	))

	properties.Property("split parts tile the band", prop.ForAll(
		func(n int) bool {
			b := band{from: 5, to: 95}
			prev := b.from
			for i := 0; i < n; i++ {
				part := b.split(i, n)
				if part.from != prev || part.to < part.from {
					return false
				}
				prev = part.to
			}
			return prev > 94.999 && prev < 95.001
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
