// Package producer defines the behavioral contract every event-producing
// module implements.
//
// A producer declares the event types it watches and produces, and turns
// incoming events into zero or more new events chained to their cause. Two
// constructs are mandatory regardless of what external system a producer
// consults: a per-run dedup cache so an already-processed payload is skipped
// without side effect, and a one-way error latch that permanently silences
// the producer after an unrecoverable upstream failure. Both are private to
// one producer instance and one run; they are never shared.
package producer

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/osintlabs/scantrail/pkg/scantrail"
)

// Producer is one event-producing module.
//
// HandleEvent must never panic the pipeline on malformed external data: a
// payload of unexpected shape is skipped or produces nothing. External
// failures are converted into a latched error state or a logged message, not
// returned as pipeline-fatal errors.
type Producer interface {
	// Name identifies the producer; it is recorded as the module of every
	// event it emits.
	Name() string

	// WatchedEvents returns the event types the producer consumes.
	WatchedEvents() []string

	// ProducedEvents returns the event types the producer can emit.
	ProducedEvents() []string

	// HandleEvent processes one event and returns the events it caused,
	// in emission order. Each returned event must carry a source hash
	// chaining it to evt or to an earlier event in the same return.
	HandleEvent(ctx context.Context, evt *scantrail.Event) ([]*scantrail.Event, error)
}

// DefaultDedupSize bounds the per-run dedup cache. At the default size the
// cache holds every payload of all but the largest scans; beyond it the
// least recently seen payloads age out and may be processed again.
const DefaultDedupSize = 65536

// Dedup is a bounded set of already-processed input payloads, scoped to one
// producer instance and one scan run.
type Dedup struct {
	cache *lru.Cache[string, struct{}]
}

// NewDedup creates a dedup cache holding up to size payloads.
// Sizes below 1 fall back to DefaultDedupSize.
func NewDedup(size int) *Dedup {
	if size < 1 {
		size = DefaultDedupSize
	}
	cache, _ := lru.New[string, struct{}](size)
	return &Dedup{cache: cache}
}

// Seen records value and reports whether it had been recorded before.
func (d *Dedup) Seen(value string) bool {
	found, _ := d.cache.ContainsOrAdd(value, struct{}{})
	return found
}

// Len returns the number of recorded payloads.
func (d *Dedup) Len() int {
	return d.cache.Len()
}

// Latch is a one-way error state. Once tripped it stays tripped for the
// remainder of the run; there is no reset.
type Latch struct {
	tripped atomic.Bool
}

// Trip sets the error state.
func (l *Latch) Trip() {
	l.tripped.Store(true)
}

// Tripped reports whether the error state has been set.
func (l *Latch) Tripped() bool {
	return l.tripped.Load()
}

// Base carries the two mandatory per-run constructs of the contract. Embed
// it in a producer implementation and consult both at the top of
// HandleEvent.
type Base struct {
	dedup *Dedup
	latch Latch
}

// NewBase creates the per-run state for one producer instance.
func NewBase() *Base {
	return &Base{dedup: NewDedup(DefaultDedupSize)}
}

// Seen records an input payload and reports whether it was already
// processed this run.
func (b *Base) Seen(value string) bool {
	return b.dedup.Seen(value)
}

// Fail trips the error latch.
func (b *Base) Fail() {
	b.latch.Trip()
}

// Failed reports whether the producer has latched into its error state.
func (b *Base) Failed() bool {
	return b.latch.Tripped()
}
