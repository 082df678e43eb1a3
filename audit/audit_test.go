package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, Event) error {
	f.calls++
	return errors.New("sink unavailable")
}

type panickyRecorder struct{}

func (panickyRecorder) Record(context.Context, Event) error { panic("boom") }

func TestFire_NeverEscalates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := zap.NewNop()

	// nil recorder is a no-op
	Fire(ctx, nil, logger, Event{Type: EventMessageSent})

	// recorder error is swallowed
	rec := &failingRecorder{}
	Fire(ctx, rec, logger, Event{Type: EventMessageSent})
	if rec.calls != 1 {
		t.Fatalf("expected 1 call, got %d", rec.calls)
	}

	// recorder panic is swallowed
	Fire(ctx, panickyRecorder{}, logger, Event{Type: EventDeliveryFailed})
}

func TestFire_StampsTimestamp(t *testing.T) {
	t.Parallel()

	var got Event
	rec := recorderFunc(func(_ context.Context, ev Event) error {
		got = ev
		return nil
	})

	Fire(context.Background(), rec, zap.NewNop(), Event{Type: EventStepCompleted})
	if got.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	Fire(context.Background(), rec, zap.NewNop(), Event{Type: EventStepCompleted, Timestamp: at})
	if !got.Timestamp.Equal(at) {
		t.Fatal("explicit timestamp must be preserved")
	}
}

type recorderFunc func(context.Context, Event) error

func (f recorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

func TestZapRecorder(t *testing.T) {
	t.Parallel()

	r := NewZapRecorder(nil)
	if err := r.Record(context.Background(), Event{Type: EventAgentRegistered, Actor: "valuation-lead"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
