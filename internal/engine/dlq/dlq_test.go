package dlq

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

func TestNew_RejectsEmptyDir(t *testing.T) {
	if _, err := New("   "); !perr.IsCode(err, perr.ErrorCodeInvalidConfiguration) {
		t.Fatalf("New(empty) err = %v, want InvalidConfiguration", err)
	}
}

func TestEnqueueThenDequeueAll(t *testing.T) {
	q := newTestQueue(t)

	e := domain.FailedExtraction{
		ExtractionTimeUTC: time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
		FailedAtUTC:       time.Date(2025, 1, 2, 0, 5, 0, 0, time.UTC),
		RetryCount:        3,
		LastError:         "boom",
	}
	if err := q.Enqueue(e); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.DequeueAll()
	if err != nil {
		t.Fatalf("DequeueAll: %v", err)
	}
	if len(got) != 1 || !got[0].ExtractionTimeUTC.Equal(e.ExtractionTimeUTC) {
		t.Fatalf("DequeueAll = %+v, want one entry matching %+v", got, e)
	}

	n, err := q.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count after DequeueAll = %d, want 0", n)
	}
}

func TestEnqueue_DeduplicatesByExtractionTime(t *testing.T) {
	q := newTestQueue(t)
	at := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)

	if err := q.Enqueue(domain.FailedExtraction{ExtractionTimeUTC: at, RetryCount: 1, LastError: "first"}); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	if err := q.Enqueue(domain.FailedExtraction{ExtractionTimeUTC: at, RetryCount: 2, LastError: "second"}); err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}

	all, err := q.PeekAll()
	if err != nil {
		t.Fatalf("PeekAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(PeekAll) = %d, want 1 (deduplicated)", len(all))
	}
	if all[0].RetryCount != 2 || all[0].LastError != "second" {
		t.Fatalf("PeekAll[0] = %+v, want the newer entry to supersede", all[0])
	}
}

func TestDequeueAll_SortedAscending(t *testing.T) {
	q := newTestQueue(t)
	t2 := time.Date(2025, 1, 2, 23, 0, 0, 0, time.UTC)
	t1 := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	t3 := time.Date(2025, 1, 3, 23, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{t2, t1, t3} {
		if err := q.Enqueue(domain.FailedExtraction{ExtractionTimeUTC: at}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	got, err := q.DequeueAll()
	if err != nil {
		t.Fatalf("DequeueAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !got[0].ExtractionTimeUTC.Equal(t1) || !got[1].ExtractionTimeUTC.Equal(t2) || !got[2].ExtractionTimeUTC.Equal(t3) {
		t.Fatalf("DequeueAll not sorted ascending: %+v", got)
	}
}

func TestRemove_RoundTrip(t *testing.T) {
	q := newTestQueue(t)
	at := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)

	if err := q.Enqueue(domain.FailedExtraction{ExtractionTimeUTC: at}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	removed, err := q.Remove(at)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatalf("Remove returned false, want true")
	}
	n, err := q.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count after Remove = %d, want 0", n)
	}

	removedAgain, err := q.Remove(at)
	if err != nil {
		t.Fatalf("Remove (again): %v", err)
	}
	if removedAgain {
		t.Fatalf("Remove on missing entry returned true")
	}
}

func TestMalformedFile_TreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("seed malformed file: %v", err)
	}

	q, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := q.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count on malformed file = %d, want 0", n)
	}
}

func TestEmptyFile_TreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("seed empty file: %v", err)
	}

	q, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	all, err := q.PeekAll()
	if err != nil {
		t.Fatalf("PeekAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("PeekAll on empty file = %+v, want none", all)
	}
}

func TestCaseInsensitiveFieldMatchingOnRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	raw := `[{"extractiontimeutc":"2025-01-01T23:00:00Z","failedatutc":"2025-01-02T00:00:00Z","retrycount":4,"lasterror":"oops"}]`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("seed lowercase-keys file: %v", err)
	}

	q, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	all, err := q.PeekAll()
	if err != nil {
		t.Fatalf("PeekAll: %v", err)
	}
	if len(all) != 1 || all[0].RetryCount != 4 || all[0].LastError != "oops" {
		t.Fatalf("PeekAll = %+v, want case-insensitive match", all)
	}
}
