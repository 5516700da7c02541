// Package scheduler is the Scheduler (C6): the control loop. A single
// driver, woken by a ticker or an explicit wake signal, leases ready
// tasks from the Task Store, dispatches them onto a bounded worker pool,
// invokes the resolved plugin, and interprets its results into follow-up
// tasks, dispatched actions, retries, recurrence and terminal status
// writes. Structurally this is the teacher's cron-tick driver loop
// generalized from "scan schedules, enqueue to Redis" into "lease from
// Postgres, dispatch to the worker pool, interpret plugin results".
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/OctaHive/octabot/internal/action"
	"github.com/OctaHive/octabot/internal/clock"
	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
	"github.com/OctaHive/octabot/internal/logging"
	"github.com/OctaHive/octabot/internal/observability"
	"github.com/OctaHive/octabot/internal/registry"
	"github.com/OctaHive/octabot/internal/store"
	"github.com/OctaHive/octabot/internal/worker"
)

// Config carries the tunables from spec.md §6 the scheduler needs at
// runtime.
type Config struct {
	Tick          time.Duration
	PoolCapacity  int
	LeaseTTL      time.Duration
	PluginTimeout time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	RetryCap      time.Duration
}

// Scheduler is the control loop described above.
type Scheduler struct {
	store      *store.Store
	registry   *registry.Registry
	dispatcher *action.Dispatcher
	pool       *worker.Pool
	clock      clock.Clock
	log        *logging.Logger
	cfg        Config

	ticker  *time.Ticker
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	drained chan struct{}

	onStatusChange func(taskID, kind, status string)
}

// OnStatusChange installs a hook invoked whenever a task reaches a
// terminal or retry status. The HTTP API uses this to fan a task's
// lifecycle out over its websocket feed without the scheduler importing
// the API package.
func (s *Scheduler) OnStatusChange(fn func(taskID, kind, status string)) {
	s.onStatusChange = fn
}

func (s *Scheduler) notify(t domain.Task, status domain.Status) {
	if s.onStatusChange != nil {
		s.onStatusChange(t.ID.String(), t.Kind, string(status))
	}
}

// New assembles a Scheduler. The caller starts it with Start and stops it
// with Shutdown.
func New(parent context.Context, st *store.Store, reg *registry.Registry, disp *action.Dispatcher, clk clock.Clock, log *logging.Logger, cfg Config) *Scheduler {
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		store:      st,
		registry:   reg,
		dispatcher: disp,
		pool:       worker.New(ctx, cfg.PoolCapacity),
		clock:      clk,
		log:        log,
		cfg:        cfg,
		ticker:     time.NewTicker(cfg.Tick),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		drained:    make(chan struct{}),
	}
}

// Wake nudges the driver to run a tick immediately instead of waiting for
// the next ticker fire — used by the API when it creates a task whose
// start_at is imminent, and by a worker that just finished (so its
// follow-ups become visible to the next batch sooner).
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the pool and blocks running the driver loop until the
// scheduler's context is cancelled. Run it in its own goroutine.
func (s *Scheduler) Start() {
	s.pool.Start()
	defer close(s.drained)
	defer s.ticker.Stop()

	s.log.Infow("scheduler started", "tick", s.cfg.Tick, "pool_capacity", s.cfg.PoolCapacity)
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("scheduler stopping, draining pool")
			s.pool.Stop()
			return
		case <-s.ticker.C:
			s.tick()
		case <-s.wake:
			s.tick()
		}
	}
}

// Shutdown cancels the driver and blocks until the pool has drained or
// deadline elapses, whichever comes first.
func (s *Scheduler) Shutdown(deadline time.Duration) {
	s.cancel()
	select {
	case <-s.drained:
	case <-time.After(deadline):
		s.log.Warn("scheduler shutdown deadline exceeded; unfinished jobs will recover via lease expiry")
	}
}

// tick performs one acquire-and-dispatch cycle. Store errors are logged
// and absorbed; the driver simply retries on the next tick, per the
// StoreError propagation policy of §7.
func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	now := s.clock.Now()
	capacity := s.cfg.PoolCapacity - s.pool.InFlight()
	if capacity <= 0 {
		return
	}

	batch, err := s.store.AcquireBatch(s.ctx, now, capacity, s.cfg.LeaseTTL)
	if err != nil {
		s.log.Errorw("acquire batch failed", "err", err)
		return
	}
	for _, t := range batch {
		task := t
		s.pool.Submit(func(ctx context.Context) {
			s.runJob(ctx, task)
		})
	}
}

// runJob executes the per-job steps of §4.6 against one leased task.
func (s *Scheduler) runJob(ctx context.Context, t domain.Task) {
	ctx, span := observability.Tracer.Start(ctx, "scheduler.run_job")
	span.SetAttributes(
		attribute.String("task.id", t.ID.String()),
		attribute.String("task.kind", t.Kind),
	)
	defer span.End()

	log := s.log.With("task_id", t.ID.String(), "kind", t.Kind)

	plugin, err := s.registry.Resolve(ctx, t.Kind)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Warnw("unknown plugin", "err", err)
		if err := s.store.MarkFailed(ctx, t.ID); err != nil {
			log.Errorw("mark failed (unknown plugin) failed", "err", err)
			return
		}
		s.notify(t, domain.StatusFailed)
		return
	}

	project, err := s.store.GetProject(ctx, t.ProjectID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Errorw("resolve task project failed", "err", err)
		return
	}

	envelope := domain.Envelope{
		ID:         t.ID,
		Name:       t.Name,
		Project:    project.Code,
		Options:    t.Options,
		ExternalID: t.ExternalID,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Errorw("marshal envelope failed", "err", err)
		return
	}

	results, procErr := plugin.Process(ctx, payload, s.cfg.PluginTimeout)
	if procErr != nil {
		s.handleFailure(ctx, log, t, procErr)
		return
	}

	s.handleSuccess(ctx, log, t, results)
}

// handleFailure applies §4.6 step 5: retry with exponential backoff and
// jitter up to MaxRetries, then a terminal failure. Cancellation is not a
// failure at all — the task is left in_progress for lease recovery.
func (s *Scheduler) handleFailure(ctx context.Context, log *logging.Logger, t domain.Task, procErr error) {
	if errors.Is(procErr, errs.ErrCancelled) {
		log.Infow("task cancelled mid-invocation, leaving in_progress for lease recovery")
		return
	}

	log.Warnw("plugin invocation failed", "err", procErr)
	if t.Retries < s.cfg.MaxRetries {
		retries := t.Retries + 1
		backoff := s.backoff(retries)
		nextStart := s.clock.Now().Add(backoff)
		if err := s.store.MarkRetried(ctx, t.ID, retries, nextStart); err != nil {
			log.Errorw("mark retried failed", "err", err)
			return
		}
		s.notify(t, domain.StatusRetried)
		return
	}
	if err := s.store.MarkFailed(ctx, t.ID); err != nil {
		log.Errorw("mark failed failed", "err", err)
		return
	}
	s.notify(t, domain.StatusFailed)
}

// backoff computes min(base * 2^retries, cap) with +-10% jitter.
func (s *Scheduler) backoff(retries int) time.Duration {
	base := s.cfg.RetryBase
	if base <= 0 {
		base = 5 * time.Second
	}
	cp := s.cfg.RetryCap
	if cp <= 0 {
		cp = time.Hour
	}
	d := base
	for i := 0; i < retries && d < cp; i++ {
		d *= 2
	}
	if d > cp {
		d = cp
	}
	jitter := time.Duration((rand.Float64()*2 - 1) * 0.1 * float64(d))
	return d + jitter
}

// handleSuccess applies §4.6 step 4: process each result, insert a
// recurring task's successor when it has a schedule, then mark the task
// finished.
func (s *Scheduler) handleSuccess(ctx context.Context, log *logging.Logger, t domain.Task, results []domain.PluginResult) {
	for _, r := range results {
		switch r.Kind {
		case domain.ResultTask:
			s.handleTaskResult(ctx, log, r.Task)
		case domain.ResultAction:
			s.handleActionResult(ctx, log, r.Action)
		default:
			log.Warnw("unrecognized plugin result kind", "kind", r.Kind)
		}
	}

	if t.Schedule != nil {
		next, err := clock.NextFire(*t.Schedule, s.clock.Now())
		if err != nil {
			log.Warnw("bad cron on recurring task", "schedule", *t.Schedule, "err", err)
			if err := s.store.MarkFailed(ctx, t.ID); err != nil {
				log.Errorw("mark failed (bad cron) failed", "err", err)
				return
			}
			s.notify(t, domain.StatusFailed)
			return
		}
		_, err = s.store.InsertFollowUp(ctx, domain.TaskSpec{
			Name:      t.Name,
			Kind:      t.Kind,
			ProjectID: t.ProjectID,
			Schedule:  t.Schedule,
			StartAt:   next,
			Options:   t.Options,
		})
		if err != nil {
			log.Errorw("insert recurrence follow-up failed", "err", err)
		}
	}

	if err := s.store.MarkFinished(ctx, t.ID); err != nil {
		log.Errorw("mark finished failed", "err", err)
		return
	}
	s.notify(t, domain.StatusFinished)
}

func (s *Scheduler) handleTaskResult(ctx context.Context, log *logging.Logger, r *domain.PluginTaskResult) {
	if r == nil {
		return
	}
	project, err := s.store.GetProjectByCode(ctx, r.ProjectCode)
	if err != nil {
		log.Warnw("task result references unknown project code, skipping", "project_code", r.ProjectCode)
		return
	}

	var externalModifiedAt *time.Time
	if r.ExternalModifiedAt != nil {
		t := time.Unix(*r.ExternalModifiedAt, 0).UTC()
		externalModifiedAt = &t
	}

	spec := domain.TaskSpec{
		Name:               r.Name,
		Kind:               r.Kind,
		ProjectID:          project.ID,
		ExternalID:         r.ExternalID,
		ExternalModifiedAt: externalModifiedAt,
		StartAt:            time.Unix(r.StartAt, 0).UTC(),
		Options:            r.Options,
	}
	if _, err := s.store.UpsertTask(ctx, spec); err != nil {
		log.Errorw("upsert task result failed", "err", err)
		return
	}
	s.Wake()
}

func (s *Scheduler) handleActionResult(ctx context.Context, log *logging.Logger, r *domain.ActionResult) {
	if r == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, r.Name, r.Payload); err != nil {
		log.Warnw("action dispatch failed", "action", r.Name, "err", err)
	}
}
