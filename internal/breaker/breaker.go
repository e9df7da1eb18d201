// Package breaker implements a per-provider three-state circuit breaker
// (Closed/Open/HalfOpen) with a 60s rolling window of 10s buckets, a volume
// threshold, an error-percentage threshold, and a reset timeout. The state
// machine itself — including half-open admitting exactly one trial call — is
// sony/gobreaker/v2; the rolling window is ours, since gobreaker's built-in
// Counts reset wholesale at its Interval boundary rather than decaying
// bucket by bucket.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/applog"
)

// Config holds the breaker parameters, overridable via environment.
type Config struct {
	Timeout           time.Duration
	VolumeThreshold   int
	ErrorThresholdPct float64
	ResetTimeout      time.Duration
	// Now is an injectable time source so tests can control bucket rotation.
	Now func() time.Time
}

// DefaultConfig returns the breaker's baseline parameters.
func DefaultConfig() Config {
	return Config{
		Timeout:           2500 * time.Millisecond,
		VolumeThreshold:   5,
		ErrorThresholdPct: 50,
		ResetTimeout:      30 * time.Second,
	}
}

// Breaker wraps a single named provider's calls with the circuit breaker
// state machine and the per-call hard deadline.
type Breaker struct {
	name   string
	cfg    Config
	window *rollingWindow
	cb     *gobreaker.CircuitBreaker[any]

	onStateChange func(name string, from, to gobreaker.State)
}

// New builds a Breaker for the named provider.
func New(name string, cfg Config) *Breaker {
	w := newRollingWindow(cfg.Now)
	b := &Breaker{name: name, cfg: cfg, window: w}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // HalfOpen admits exactly one trial call.
		Interval:    0, // We drive ReadyToTrip from our own rolling window.
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			completed, failures := w.snapshot()
			if completed < cfg.VolumeThreshold {
				return false
			}
			pct := float64(failures) / float64(completed) * 100
			return pct >= cfg.ErrorThresholdPct
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				w.reset()
			}
			if b.onStateChange != nil {
				b.onStateChange(name, from, to)
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker[any](settings)
	return b
}

// OnStateChange registers a callback invoked on every state transition, used
// to feed the search.breaker.state metric.
func (b *Breaker) OnStateChange(fn func(name string, from, to gobreaker.State)) {
	b.onStateChange = fn
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// isCountedFailure reports whether err counts against the breaker: any
// ProviderTransient error does; ProviderPermanent (BadRequest, ParseError)
// does not.
func isCountedFailure(err error) bool {
	if err == nil {
		return false
	}
	return apperr.KindOf(err) == apperr.KindProviderTransient
}

// Execute runs fn under the breaker's protection and the hard per-call
// deadline. If the breaker is open, fn is never invoked and a BreakerOpen
// error is returned immediately.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	result, err := b.cb.Execute(func() (any, error) {
		res, err := fn(callCtx)
		switch {
		case err == nil:
			b.window.record(true)
		case isCountedFailure(err):
			b.window.record(false)
		default:
			// ProviderPermanent/Validation errors are not counted against
			// the rolling window at all, but the error is still returned to
			// gobreaker so its own half-open single-trial admission logic
			// (independent of our ReadyToTrip) treats the trial as failed.
		}
		return res, err
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		applog.From(ctx).Debug("breaker open, rejecting call", "provider", b.name)
		return nil, apperr.New(apperr.KindBreakerOpen, "circuit open for provider "+b.name)
	}
	return result, err
}
