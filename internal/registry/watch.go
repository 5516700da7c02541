package registry

import (
	"context"
	"math/rand"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch rescans the plugin directory whenever it changes, letting an
// operator drop in or replace a .wasm file without a restart. spec's own
// text only calls for a boot-time scan ("at boot, scans a configured
// directory"); this is a supplemental enrichment layered on top, not a
// substitute for Scan — callers must still call Scan once before Watch.
// Debounced with a self-healing restart loop, following the same shape as
// the config-file watcher this pattern is grounded on.
func (r *Registry) Watch(ctx context.Context) error {
	const (
		debounce     = 250 * time.Millisecond
		backoffBase  = 250 * time.Millisecond
		backoffCap   = 5 * time.Second
	)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := backoffBase

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			r.log.Warnw("plugin watch init failed", "err", err, "dir", r.dir)
			if !sleepBackoff(ctx, &backoff, backoffCap, rng) {
				return nil
			}
			continue
		}

		if err := w.Add(r.dir); err != nil {
			_ = w.Close()
			r.log.Warnw("plugin watch add failed", "err", err, "dir", r.dir)
			if !sleepBackoff(ctx, &backoff, backoffCap, rng) {
				return nil
			}
			continue
		}
		backoff = backoffBase

		broken := r.watchLoop(ctx, w, debounce)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		if !broken {
			continue
		}
		if !sleepBackoff(ctx, &backoff, backoffCap, rng) {
			return nil
		}
	}
}

// watchLoop drains one watcher's events until it breaks or ctx ends. It
// returns true if the watcher broke (so the caller should restart it).
func (r *Registry) watchLoop(ctx context.Context, w *fsnotify.Watcher, debounceFor time.Duration) bool {
	var timer *time.Timer
	rescan := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceFor, func() {
			if err := r.Scan(ctx); err != nil {
				r.log.Warnw("plugin rescan failed", "err", err, "dir", r.dir)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				rescan()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if err != nil {
				r.log.Warnw("plugin watch error", "err", err, "dir", r.dir)
			}
		}
	}
}

func sleepBackoff(ctx context.Context, backoff *time.Duration, cap time.Duration, rng *rand.Rand) bool {
	wait := *backoff + time.Duration(rng.Int63n(int64(*backoff/2)+1))
	if *backoff < cap {
		*backoff *= 2
		if *backoff > cap {
			*backoff = cap
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}
