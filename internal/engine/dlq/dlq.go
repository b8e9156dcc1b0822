// Package dlq implements the persistent, file-backed dead-letter queue:
// a single JSON document holding failed extractions, replaced atomically on
// every write.
package dlq

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
	"powerpositions/internal/platform/logger"
)

const fileName = "FailedExtractions.json"

// entry is the on-disk shape of a domain.FailedExtraction. Field names match
// the canonical spelling used on write; reads match case-insensitively via
// json.Unmarshal's default field matching
type entry struct {
	ExtractionTimeUtc time.Time `json:"ExtractionTimeUtc"`
	FailedAtUtc       time.Time `json:"FailedAtUtc"`
	RetryCount        int       `json:"RetryCount"`
	LastError         string    `json:"LastError"`
}

func toEntry(f domain.FailedExtraction) entry {
	return entry{
		ExtractionTimeUtc: f.ExtractionTimeUTC,
		FailedAtUtc:       f.FailedAtUTC,
		RetryCount:        f.RetryCount,
		LastError:         f.LastError,
	}
}

func (e entry) toDomain() domain.FailedExtraction {
	return domain.FailedExtraction{
		ExtractionTimeUTC: e.ExtractionTimeUtc,
		FailedAtUTC:       e.FailedAtUtc,
		RetryCount:        e.RetryCount,
		LastError:         e.LastError,
	}
}

// Queue is the production domain.DeadLetterQueue, backed by
// <dir>/FailedExtractions.json
type Queue struct {
	mu   sync.Mutex
	path string
}

// New creates the DLQ directory if absent and returns a Queue backed by it
func New(dir string) (*Queue, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, perr.InvalidConfigurationf("dlq directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidConfiguration, "creating dlq directory %q", dir)
	}
	return &Queue{path: filepath.Join(dir, fileName)}, nil
}

// Enqueue replaces any entry with the same ExtractionTimeUTC and re-sorts
func (q *Queue) Enqueue(f domain.FailedExtraction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readLocked()
	if err != nil {
		return err
	}

	replaced := false
	for i, e := range entries {
		if e.ExtractionTimeUtc.Equal(f.ExtractionTimeUTC) {
			entries[i] = toEntry(f)
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, toEntry(f))
	}
	sortEntries(entries)

	return q.writeLocked(entries)
}

// DequeueAll returns all entries sorted ascending by ExtractionTimeUTC and
// atomically empties the store
func (q *Queue) DequeueAll() ([]domain.FailedExtraction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readLocked()
	if err != nil {
		return nil, err
	}
	sortEntries(entries)

	if err := q.writeLocked(nil); err != nil {
		return nil, err
	}

	out := make([]domain.FailedExtraction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toDomain())
	}
	return out, nil
}

// Count returns the number of entries currently persisted
func (q *Queue) Count() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readLocked()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// PeekAll returns all entries without mutating the store, sorted ascending
func (q *Queue) PeekAll() ([]domain.FailedExtraction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readLocked()
	if err != nil {
		return nil, err
	}
	sortEntries(entries)

	out := make([]domain.FailedExtraction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toDomain())
	}
	return out, nil
}

// Remove deletes the entry with the given ExtractionTimeUTC, if present
func (q *Queue) Remove(extractionTimeUTC time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readLocked()
	if err != nil {
		return false, err
	}

	idx := -1
	for i, e := range entries {
		if e.ExtractionTimeUtc.Equal(extractionTimeUTC) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}
	entries = append(entries[:idx], entries[idx+1:]...)

	if err := q.writeLocked(entries); err != nil {
		return false, err
	}
	return true, nil
}

func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ExtractionTimeUtc.Before(entries[j].ExtractionTimeUtc)
	})
}

// readLocked reads and parses the backing file. A missing file is an empty
// queue; an empty or malformed file is also treated as an empty queue and
// logged as a warning. Recovery from the DLQ is best-effort, never fatal
func (q *Queue) readLocked() ([]entry, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeIOFailure, "reading dlq file %q", q.path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		logger.Get().Warn().Str("path", q.path).
			Msg("dlq file is empty; treating as empty queue")
		return nil, nil
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Get().Warn().Err(err).Str("path", q.path).
			Msg("dlq file is malformed; treating as empty queue")
		return nil, nil
	}
	return entries, nil
}

// writeLocked serializes entries to a temp file and renames it over the
// target, so a crash mid-write leaves the prior queue intact
func (q *Queue) writeLocked(entries []entry) error {
	if entries == nil {
		entries = []entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIOFailure, "marshalling dlq entries")
	}

	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIOFailure, "writing dlq temp file %q", tmp)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIOFailure, "replacing dlq file %q", q.path)
	}
	return nil
}
