package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/store"
)

// fakeApplier implements GPSApplier for tests
type fakeApplier struct {
	fail  int // number of times to fail before succeeding
	err   error
	calls int
}

func (f *fakeApplier) ReceiveGPS(ctx context.Context, s models.GPSSample) (uuid.UUID, error) {
	f.calls++
	if f.calls <= f.fail {
		return uuid.Nil, f.err
	}
	return uuid.New(), nil
}

func TestApplyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeApplier{fail: 2, err: errors.New("transient")}
	s := models.GPSSample{IMEI: "imei-1", Latitude: 1, Longitude: 2, Speed: 30}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, s, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestApplyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeApplier{fail: 5, err: errors.New("transient")}
	s := models.GPSSample{IMEI: "imei-1"}
	if err := applyWithRetry(context.Background(), f, s, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestApplyWithRetry_DropsUnknownTracker(t *testing.T) {
	f := &fakeApplier{fail: 5, err: store.ErrNotFound}
	s := models.GPSSample{IMEI: "ghost"}
	if err := applyWithRetry(context.Background(), f, s, 3, time.Millisecond); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not-found passthrough, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", f.calls)
	}
}
