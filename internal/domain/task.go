// Package domain holds the engine's persisted entities: Task, Project and
// User. Field shapes mirror the schema in internal/migrate exactly.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusFinished   Status = "finished"
	StatusRetried    Status = "retried"
)

// Task is the central entity: a unit of work leased to exactly one worker
// at a time and executed by the plugin named in Kind.
type Task struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	Kind                string          `json:"kind"`
	ProjectID           uuid.UUID       `json:"project_id"`
	Status              Status          `json:"status"`
	Retries             int             `json:"retries"`
	ExternalID          *string         `json:"external_id,omitempty"`
	ExternalModifiedAt  *time.Time      `json:"external_modified_at,omitempty"`
	Schedule            *string         `json:"schedule,omitempty"`
	StartAt             time.Time       `json:"start_at"`
	Options             json.RawMessage `json:"options"`
	LockedAt            *time.Time      `json:"locked_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TaskSpec is the input to Store.UpsertTask: either a brand-new task or a
// candidate row to reconcile against an existing external_id match.
type TaskSpec struct {
	Name               string
	Kind               string
	ProjectID          uuid.UUID
	ExternalID         *string
	ExternalModifiedAt *time.Time
	Schedule           *string
	StartAt            time.Time
	Options            json.RawMessage
}

// TaskFilter narrows ListTasks. Zero values are unfiltered.
type TaskFilter struct {
	ProjectID *uuid.UUID
	Status    *Status
	Kind      *string
	Limit     int
	Offset    int
}

// Envelope is the JSON object handed to a plugin's process export, exactly
// as described in the ABI: {id, name, project, options, external_id?}.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Project    string          `json:"project"`
	Options    json.RawMessage `json:"options"`
	ExternalID *string         `json:"external_id,omitempty"`
}
