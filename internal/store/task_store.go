package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
)

const taskColumns = `id, name, kind, project_id, status, retries, external_id, external_modified_at,
	schedule, start_at, options, locked_at, created_at, updated_at`

const taskColumnsQualified = `t.id, t.name, t.kind, t.project_id, t.status, t.retries, t.external_id, t.external_modified_at,
	t.schedule, t.start_at, t.options, t.locked_at, t.created_at, t.updated_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	if err := row.Scan(
		&t.ID, &t.Name, &t.Kind, &t.ProjectID, &t.Status, &t.Retries, &t.ExternalID, &t.ExternalModifiedAt,
		&t.Schedule, &t.StartAt, &t.Options, &t.LockedAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan task: %v", errs.ErrStore, err)
	}
	return &t, nil
}

// UpsertTask implements the idempotent-upsert contract of the task store.
// When spec.ExternalID is set and an existing row shares it, the row is
// left untouched (and returned as-is) whenever the existing row's
// external_modified_at is greater than or equal to spec's — the
// greater-or-equal reading of the spec's upsert rule. Otherwise the
// matching row's mutable fields are updated in place. With no ExternalID,
// a fresh row is always inserted.
func (s *Store) UpsertTask(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	if spec.Options == nil {
		spec.Options = []byte(`{}`)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin upsert: %v", errs.ErrStore, err)
	}
	defer tx.Rollback(ctx)

	if spec.ExternalID != nil {
		row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE external_id = $1 FOR UPDATE`, *spec.ExternalID)
		existing, err := scanTask(row)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			if existing.ExternalModifiedAt != nil && spec.ExternalModifiedAt != nil &&
				!existing.ExternalModifiedAt.Before(*spec.ExternalModifiedAt) {
				if err := tx.Commit(ctx); err != nil {
					return nil, fmt.Errorf("%w: commit upsert noop: %v", errs.ErrStore, err)
				}
				return existing, nil
			}

			row := tx.QueryRow(ctx, `
				UPDATE tasks SET name=$2, kind=$3, project_id=$4, external_modified_at=$5,
					schedule=$6, start_at=$7, options=$8, updated_at=now()
				WHERE id=$1
				RETURNING `+taskColumns,
				existing.ID, spec.Name, spec.Kind, spec.ProjectID, spec.ExternalModifiedAt,
				spec.Schedule, spec.StartAt, spec.Options,
			)
			updated, err := scanTask(row)
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("%w: commit upsert update: %v", errs.ErrStore, err)
			}
			return updated, nil
		}
	}

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO tasks (id, name, kind, project_id, status, retries, external_id, external_modified_at,
			schedule, start_at, options, locked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'new', 0, $5, $6, $7, $8, $9, NULL, now(), now())
		RETURNING `+taskColumns,
		id, spec.Name, spec.Kind, spec.ProjectID, spec.ExternalID, spec.ExternalModifiedAt,
		spec.Schedule, spec.StartAt, spec.Options,
	)
	created, err := scanTask(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return nil, fmt.Errorf("%w: external_id collision", errs.ErrConflict)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit upsert insert: %v", errs.ErrStore, err)
	}
	return created, nil
}

// AcquireBatch atomically leases up to limit ready tasks: either a fresh
// task (status new/retried, start_at <= now, never locked or its lock
// long expired) or one still marked in_progress whose lease has expired
// past leaseTTL — a worker that crashed or was killed mid-run never
// clears its lock, so without the second half of this predicate that
// task would be stuck in_progress forever. Selection and lease
// acquisition happen in a single UPDATE...FROM...RETURNING statement
// guarded by SKIP LOCKED, so two concurrent callers can never receive
// overlapping ids.
func (s *Store) AcquireBatch(ctx context.Context, now time.Time, limit int, leaseTTL time.Duration) ([]domain.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	staleBefore := now.Add(-leaseTTL)

	rows, err := s.pool.Query(ctx, `
		WITH ready AS (
			SELECT id FROM tasks
			WHERE start_at <= $1
				AND (
					(status IN ('new', 'retried') AND (locked_at IS NULL OR locked_at < $2))
					OR (status = 'in_progress' AND locked_at < $2)
				)
			ORDER BY start_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t
		SET status = 'in_progress', locked_at = $1, updated_at = $1
		FROM ready
		WHERE t.id = ready.id
		RETURNING `+taskColumnsQualified,
		now, staleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire batch: %v", errs.ErrStore, err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: acquire batch rows: %v", errs.ErrStore, err)
	}
	return out, nil
}

// MarkFinished transitions a task to its terminal successful state and
// clears its lease.
func (s *Store) MarkFinished(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET status='finished', locked_at=NULL, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%w: mark finished: %v", errs.ErrStore, err)
	}
	return nil
}

// MarkFailed transitions a task to its terminal failure state and clears
// its lease.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET status='failed', locked_at=NULL, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%w: mark failed: %v", errs.ErrStore, err)
	}
	return nil
}

// MarkRetried schedules a task for another attempt at nextStartAt with
// retries bumped to the given count, releasing the current lease.
func (s *Store) MarkRetried(ctx context.Context, id uuid.UUID, retries int, nextStartAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status='retried', retries=$2, start_at=$3, locked_at=NULL, updated_at=now()
		WHERE id=$1`, id, retries, nextStartAt)
	if err != nil {
		return fmt.Errorf("%w: mark retried: %v", errs.ErrStore, err)
	}
	return nil
}

// GetTask fetches a single task by id.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id)
	return scanTask(row)
}

// ListTasks returns tasks matching filter, most recently created first.
func (s *Store) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProjectID != nil {
		query += ` AND project_id = ` + arg(*filter.ProjectID)
	}
	if filter.Status != nil {
		query += ` AND status = ` + arg(*filter.Status)
	}
	if filter.Kind != nil {
		query += ` AND kind = ` + arg(*filter.Kind)
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", errs.ErrStore, err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTask removes a task row. Retention policy is out of scope for the
// engine itself; this only serves the explicit API-driven delete path.
func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete task: %v", errs.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// InsertFollowUp inserts a fresh new-status task as a recurring task's
// successor. It is a thin wrapper over UpsertTask; the successor never
// carries an external_id, so no idempotency reconciliation applies.
// Task-emitting plugin results call UpsertTask directly.
func (s *Store) InsertFollowUp(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	return s.UpsertTask(ctx, spec)
}
