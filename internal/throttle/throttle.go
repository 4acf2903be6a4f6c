// Package throttle guards the login entry point with per-session failure
// counting and timed lockouts.
package throttle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/InboxGo/internal/domain"
)

var lockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "login_lockouts_total",
	Help: "Number of sessions locked after repeated failed logins",
})

// Config controls the lockout state machine.
type Config struct {
	// MaxAttempts failed attempts are tolerated; the next one locks.
	MaxAttempts int
	// LockoutDuration is how long a lock lasts.
	LockoutDuration time.Duration
	// InactivityWindow resets a record when no attempt arrives within it.
	InactivityWindow time.Duration
}

// DefaultConfig returns five attempts with fifteen minute windows.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      5,
		LockoutDuration:  15 * time.Minute,
		InactivityWindow: 15 * time.Minute,
	}
}

// Decision is the throttle verdict for one attempt.
type Decision struct {
	Blocked    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

func allowed() Decision { return Decision{} }

func blocked(d time.Duration) Decision { return Decision{Blocked: true, RetryAfter: d} }

// Throttle applies the lockout state machine over a Store.
type Throttle struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// New creates a Throttle. Zero config fields take DefaultConfig values.
func New(store Store, cfg Config) *Throttle {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = def.InactivityWindow
	}
	return &Throttle{store: store, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// LockoutDuration returns the configured lock length.
func (t *Throttle) LockoutDuration() time.Duration {
	return t.cfg.LockoutDuration
}

// Check reports whether key may attempt a login now. It never writes.
func (t *Throttle) Check(ctx context.Context, key string) (Decision, error) {
	cur, err := t.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("throttle check: %w", err)
	}
	now := t.now()
	rec := t.settle(cur, now)
	if rec != nil && rec.LockedAt(now) {
		return blocked(rec.LockedUntil.Sub(now)), nil
	}
	return allowed(), nil
}

// CheckAndRecord gates the attempt and records its outcome in one atomic
// step. A blocked attempt leaves the record unchanged. A failure that crosses
// the threshold returns a blocked decision for the full lockout.
func (t *Throttle) CheckAndRecord(ctx context.Context, key string, succeeded bool) (Decision, error) {
	var decision Decision
	err := t.store.Update(ctx, key, func(cur *domain.LoginAttempt) (*domain.LoginAttempt, error) {
		now := t.now()
		rec := t.settle(cur, now)

		if rec != nil && rec.LockedAt(now) {
			decision = blocked(rec.LockedUntil.Sub(now))
			return cur, nil
		}

		if succeeded {
			decision = allowed()
			return nil, nil
		}

		next := domain.LoginAttempt{}
		if rec != nil {
			next = *rec
		}
		next.Attempts++
		next.LastAttemptAt = now
		if next.Attempts > t.cfg.MaxAttempts {
			until := now.Add(t.cfg.LockoutDuration)
			next.LockedUntil = &until
			decision = blocked(t.cfg.LockoutDuration)
			lockoutsTotal.Inc()
		} else {
			decision = allowed()
		}
		return &next, nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("throttle record: %w", err)
	}
	return decision, nil
}

// settle applies time-based transitions: an expired lock and an idle record
// both reset to open, represented as nil.
func (t *Throttle) settle(cur *domain.LoginAttempt, now time.Time) *domain.LoginAttempt {
	if cur == nil {
		return nil
	}
	if cur.LockedUntil != nil {
		if !now.Before(*cur.LockedUntil) {
			return nil
		}
		return cur
	}
	if now.Sub(cur.LastAttemptAt) > t.cfg.InactivityWindow {
		return nil
	}
	return cur
}
