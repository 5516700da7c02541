// Package clock provides the engine's single abstract source of wall-clock
// time and cron evaluation. Every scheduler time read goes through here so
// tests can advance time deterministically instead of racing a wall clock.
package clock

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/OctaHive/octabot/internal/errs"
)

// Clock is the abstract time source. Production code uses Real; tests use
// a Fake so retry/backoff and recurrence math can be asserted exactly.
type Clock interface {
	Now() time.Time
}

// Real is the wall-clock implementation.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Fake is a mutex-guarded, advance-able clock for deterministic tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake pinned at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextFire returns the smallest instant strictly after `after` that matches
// expr. Expr is either a standard 5-field cron expression, or the
// original engine's `@every <duration>` interval shorthand (e.g.
// "@every 90s"), carried over from the source implementation even though
// spec's own examples only use plain cron syntax.
func NextFire(expr string, after time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return time.Time{}, errs.ErrBadCron
		}
		return after.Add(d), nil
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, errs.ErrBadCron
	}
	return sched.Next(after), nil
}

// ValidateCron reports whether expr is an accepted schedule grammar,
// without computing a next-fire time. Used at task-insertion time so a
// bad schedule is rejected before it ever reaches the scheduler.
func ValidateCron(expr string) error {
	_, err := NextFire(expr, time.Unix(0, 0).UTC())
	return err
}
