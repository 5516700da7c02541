package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
)

const projectColumns = `id, code, name, owner_id, options, created_at, updated_at`

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.OwnerID, &p.Options, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan project: %v", errs.ErrStore, err)
	}
	return &p, nil
}

// CreateProject inserts a new project. Code collisions surface as ErrConflict.
func (s *Store) CreateProject(ctx context.Context, p domain.Project) (*domain.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Options == nil {
		p.Options = json.RawMessage(`{}`)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, code, name, owner_id, options, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+projectColumns,
		p.ID, p.Code, p.Name, p.OwnerID, p.Options,
	)
	created, err := scanProject(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return nil, fmt.Errorf("%w: project code taken", errs.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id)
	return scanProject(row)
}

// GetProjectByCode resolves a project by its case-insensitive-unique code,
// used by the scheduler to turn a plugin's project-code result into a
// project_id.
func (s *Store) GetProjectByCode(ctx context.Context, code string) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE lower(code)=lower($1)`, code)
	return scanProject(row)
}

// ListProjects returns projects owned by ownerID, or all projects when
// ownerID is nil.
func (s *Store) ListProjects(ctx context.Context, ownerID *uuid.UUID) ([]domain.Project, error) {
	var rows pgx.Rows
	var err error
	if ownerID != nil {
		rows, err = s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner_id=$1 ORDER BY created_at DESC`, *ownerID)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list projects: %v", errs.ErrStore, err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProject updates the mutable fields of a project.
func (s *Store) UpdateProject(ctx context.Context, id uuid.UUID, name string, options json.RawMessage) (*domain.Project, error) {
	if options == nil {
		options = json.RawMessage(`{}`)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE projects SET name=$2, options=$3, updated_at=now()
		WHERE id=$1
		RETURNING `+projectColumns, id, name, options)
	return scanProject(row)
}

// DeleteProject removes a project; tasks referencing it cascade-delete per schema.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete project: %v", errs.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
