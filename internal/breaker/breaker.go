// Package breaker tracks whether the external records system is presumed
// unreachable. Once opened, the breaker stays open for a cooldown and then
// closes on its own; there is no half-open probing because every caller
// degrades to the durable queue anyway.
package breaker

import (
	"sync/atomic"
	"time"

	"placement-credit-sync/internal/logger"

	"github.com/rs/zerolog"
)

// Breaker is the narrow view the sync engine consumes.
type Breaker interface {
	IsOpen() bool
	Open()
	Close()
}

// State represents the state of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Option configures a breaker.
type Option func(*TimedBreaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *TimedBreaker) {
		b.now = now
	}
}

// WithStateChangeCallback sets the callback for state changes.
func WithStateChangeCallback(fn func(from, to State)) Option {
	return func(b *TimedBreaker) {
		b.onStateChange = fn
	}
}

// TimedBreaker holds the open-until instant as Unix nanoseconds; zero means
// closed. All transitions are compare-and-swap on that single word.
type TimedBreaker struct {
	cooldown      time.Duration
	openUntil     atomic.Int64
	now           func() time.Time
	onStateChange func(from, to State)
	log           zerolog.Logger
}

// New creates a closed breaker that opens for cooldown on each Open.
func New(cooldown time.Duration, opts ...Option) *TimedBreaker {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}

	b := &TimedBreaker{
		cooldown: cooldown,
		now:      time.Now,
		log:      logger.Get(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsOpen reports whether the cooldown is still running. An expired deadline
// is cleared so the close transition is reported exactly once.
func (b *TimedBreaker) IsOpen() bool {
	until := b.openUntil.Load()
	if until == 0 {
		return false
	}
	if b.now().UnixNano() < until {
		return true
	}
	if b.openUntil.CompareAndSwap(until, 0) {
		b.log.Info().Msg("Records system breaker cooldown elapsed, considering it up")
		b.notify(StateOpen, StateClosed)
	}
	return false
}

// Indefinitely is the outage length operators use when the records system is
// known to be down with no end in sight.
const Indefinitely = 365 * 24 * time.Hour

// Open marks the records system down for the standard cooldown.
func (b *TimedBreaker) Open() {
	b.OpenFor(b.cooldown)
}

// OpenFor marks the records system down for d from now. An existing later
// deadline is never shortened.
func (b *TimedBreaker) OpenFor(d time.Duration) {
	target := b.now().Add(d).UnixNano()
	for {
		current := b.openUntil.Load()
		if current >= target {
			return
		}
		if b.openUntil.CompareAndSwap(current, target) {
			if current == 0 || current <= b.now().UnixNano() {
				b.log.Warn().
					Time("open_until", time.Unix(0, target)).
					Msg("Records system marked down")
				b.notify(StateClosed, StateOpen)
			}
			return
		}
	}
}

// Close ends any cooldown immediately.
func (b *TimedBreaker) Close() {
	if prev := b.openUntil.Swap(0); prev != 0 && b.now().UnixNano() < prev {
		b.log.Warn().Msg("Records system breaker reset, considering it up")
		b.notify(StateOpen, StateClosed)
	}
}

// State returns the current state.
func (b *TimedBreaker) State() State {
	if b.IsOpen() {
		return StateOpen
	}
	return StateClosed
}

// OpenUntil returns the end of the cooldown, if open.
func (b *TimedBreaker) OpenUntil() (time.Time, bool) {
	if !b.IsOpen() {
		return time.Time{}, false
	}
	until := b.openUntil.Load()
	if until == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, until), true
}

func (b *TimedBreaker) notify(from, to State) {
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// AuditTransition records a state change in the audit log. It is meant for
// WithStateChangeCallback.
func AuditTransition(from, to State) {
	audit := logger.Audit()
	audit.Log().
		Str("event", "breaker_"+to.String()).
		Str("from", from.String()).
		Send()
}
