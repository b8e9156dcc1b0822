package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"powerpositions/internal/engine/domain"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type fakeExtractor struct {
	runs      int32
	recovered int32
}

func (f *fakeExtractor) Run(ctx context.Context, at time.Time) error {
	atomic.AddInt32(&f.runs, 1)
	return nil
}

func (f *fakeExtractor) RunRecovery(ctx context.Context, entry domain.FailedExtraction) error {
	atomic.AddInt32(&f.recovered, 1)
	return nil
}

type fakeDLQ struct {
	pending []domain.FailedExtraction
}

func (f *fakeDLQ) Enqueue(e domain.FailedExtraction) error { f.pending = append(f.pending, e); return nil }
func (f *fakeDLQ) DequeueAll() ([]domain.FailedExtraction, error) {
	out := f.pending
	f.pending = nil
	return out, nil
}
func (f *fakeDLQ) Count() (int, error)                         { return len(f.pending), nil }
func (f *fakeDLQ) PeekAll() ([]domain.FailedExtraction, error) { return f.pending, nil }
func (f *fakeDLQ) Remove(t time.Time) (bool, error)            { return false, nil }

func TestDrainDLQ_ReplaysAllEntries(t *testing.T) {
	ex := &fakeExtractor{}
	dlq := &fakeDLQ{pending: []domain.FailedExtraction{
		{ExtractionTimeUTC: time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)},
		{ExtractionTimeUTC: time.Date(2025, 1, 2, 23, 0, 0, 0, time.UTC)},
	}}
	s := New(ex, dlq, fakeClock{now: time.Now()}, time.Minute)

	s.DrainDLQ(context.Background())

	if ex.recovered != 2 {
		t.Fatalf("recovered = %d, want 2", ex.recovered)
	}
	if len(dlq.pending) != 0 {
		t.Fatalf("pending = %+v, want none left after drain", dlq.pending)
	}
}

func TestDrainDLQ_EmptyQueueNoOp(t *testing.T) {
	ex := &fakeExtractor{}
	dlq := &fakeDLQ{}
	s := New(ex, dlq, fakeClock{now: time.Now()}, time.Minute)

	s.DrainDLQ(context.Background())

	if ex.recovered != 0 {
		t.Fatalf("recovered = %d, want 0", ex.recovered)
	}
}

func TestStart_RunsImmediatelyThenStopsOnCancel(t *testing.T) {
	ex := &fakeExtractor{}
	dlq := &fakeDLQ{}
	s := New(ex, dlq, fakeClock{now: time.Now()}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&ex.runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ex.runs != 1 {
		t.Fatalf("runs = %d, want 1 (immediate run at startup)", ex.runs)
	}

	cancel()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return after cancellation")
	}
}

func TestStop_StopsRunningLoop(t *testing.T) {
	ex := &fakeExtractor{}
	dlq := &fakeDLQ{}
	s := New(ex, dlq, fakeClock{now: time.Now()}, time.Hour)

	go func() { _ = s.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&ex.runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
}
