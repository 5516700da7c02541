package clock

import (
	"testing"
	"time"
)

func TestNextFireCron(t *testing.T) {
	t.Parallel()
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := NextFire("*/5 * * * *", after)
	if err != nil {
		t.Fatalf("NextFire error: %v", err)
	}
	want := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireEvery(t *testing.T) {
	t.Parallel()
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := NextFire("@every 90s", after)
	if err != nil {
		t.Fatalf("NextFire error: %v", err)
	}
	want := after.Add(90 * time.Second)
	if !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireInvalid(t *testing.T) {
	t.Parallel()
	if _, err := NextFire("not a schedule", time.Now()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, err := NextFire("@every not-a-duration", time.Now()); err == nil {
		t.Fatal("expected error for invalid @every duration")
	}
}

func TestValidateCron(t *testing.T) {
	t.Parallel()
	if err := ValidateCron("*/5 * * * *"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateCron("@every 1m"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateCron("garbage"); err == nil {
		t.Fatal("expected error for garbage schedule")
	}
}

func TestFakeClock(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if !f.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", f.Now(), start)
	}
	advanced := f.Advance(time.Hour)
	want := start.Add(time.Hour)
	if !advanced.Equal(want) || !f.Now().Equal(want) {
		t.Fatalf("Advance result = %v, Now() = %v, want %v", advanced, f.Now(), want)
	}
	f.Set(start)
	if !f.Now().Equal(start) {
		t.Fatalf("Set did not reset clock: got %v, want %v", f.Now(), start)
	}
}
