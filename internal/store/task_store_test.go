package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/migrate"
)

// openTestStore requires DATABASE_URL to point at a scratch Postgres
// instance with the migrations applied. These tests are skipped, not
// failed, when it is unset, so `go test ./...` stays runnable offline.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping store integration test")
	}
	if err := migrate.Up(dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	pool, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool)
}

func seedProject(t *testing.T, s *Store) domain.Project {
	t.Helper()
	owner, err := s.CreateUser(context.Background(), domain.User{
		Username: "owner-" + uuid.NewString()[:8],
		Password: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("seed project owner: %v", err)
	}
	p, err := s.CreateProject(context.Background(), domain.Project{
		Code:    "proj-" + uuid.NewString()[:8],
		Name:    "test project",
		OwnerID: owner.ID,
		Options: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return *p
}

func TestUpsertTaskIsIdempotentByExternalID(t *testing.T) {
	s := openTestStore(t)
	proj := seedProject(t, s)

	external := "ext-1"
	firstModified := time.Now().Add(-time.Hour).UTC()

	first, err := s.UpsertTask(context.Background(), domain.TaskSpec{
		Name:               "sync item",
		Kind:               "example.sync",
		ProjectID:          proj.ID,
		ExternalID:         &external,
		ExternalModifiedAt: &firstModified,
		StartAt:            time.Now().UTC(),
		Options:            json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// A second upsert with an external_modified_at that is not newer must
	// be a no-op: same id, same retries.
	second, err := s.UpsertTask(context.Background(), domain.TaskSpec{
		Name:               "sync item",
		Kind:               "example.sync",
		ProjectID:          proj.ID,
		ExternalID:         &external,
		ExternalModifiedAt: &firstModified,
		StartAt:            time.Now().UTC(),
		Options:            json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("no-op upsert produced a new row: %s != %s", second.ID, first.ID)
	}

	// A strictly newer external_modified_at must update the existing row.
	newerModified := firstModified.Add(time.Hour)
	third, err := s.UpsertTask(context.Background(), domain.TaskSpec{
		Name:               "sync item renamed",
		Kind:               "example.sync",
		ProjectID:          proj.ID,
		ExternalID:         &external,
		ExternalModifiedAt: &newerModified,
		StartAt:            time.Now().UTC(),
		Options:            json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if third.ID != first.ID {
		t.Fatalf("newer upsert should update in place, got new id %s", third.ID)
	}
	if third.Name != "sync item renamed" {
		t.Fatalf("expected updated name, got %q", third.Name)
	}
}

func TestAcquireBatchLeasesOnce(t *testing.T) {
	s := openTestStore(t)
	proj := seedProject(t, s)
	ctx := context.Background()

	task, err := s.UpsertTask(ctx, domain.TaskSpec{
		Name:      "ready task",
		Kind:      "example.noop",
		ProjectID: proj.ID,
		StartAt:   time.Now().Add(-time.Minute).UTC(),
		Options:   json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := time.Now().UTC()
	batch, err := s.AcquireBatch(ctx, now, 10, time.Minute)
	if err != nil {
		t.Fatalf("acquire batch: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != task.ID {
		t.Fatalf("expected to lease the one ready task, got %+v", batch)
	}

	// A second acquire before the lease expires must not re-lease it.
	again, err := s.AcquireBatch(ctx, now, 10, time.Minute)
	if err != nil {
		t.Fatalf("second acquire batch: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no tasks leased twice, got %+v", again)
	}

	// Once the lease TTL has elapsed, the task becomes acquirable again.
	later := now.Add(2 * time.Minute)
	recovered, err := s.AcquireBatch(ctx, later, 10, time.Minute)
	if err != nil {
		t.Fatalf("recovery acquire batch: %v", err)
	}
	if len(recovered) != 1 || recovered[0].ID != task.ID {
		t.Fatalf("expected lease recovery to re-lease the task, got %+v", recovered)
	}
}

func TestMarkRetriedThenMarkFinished(t *testing.T) {
	s := openTestStore(t)
	proj := seedProject(t, s)
	ctx := context.Background()

	task, err := s.UpsertTask(ctx, domain.TaskSpec{
		Name:      "flaky task",
		Kind:      "example.flaky",
		ProjectID: proj.ID,
		StartAt:   time.Now().UTC(),
		Options:   json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkRetried(ctx, task.ID, 1, time.Now().Add(time.Minute).UTC()); err != nil {
		t.Fatalf("mark retried: %v", err)
	}
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != domain.StatusRetried || got.Retries != 1 {
		t.Fatalf("unexpected state after retry: %+v", got)
	}

	if err := s.MarkFinished(ctx, task.ID); err != nil {
		t.Fatalf("mark finished: %v", err)
	}
	got, err = s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != domain.StatusFinished {
		t.Fatalf("expected finished status, got %s", got.Status)
	}
}
