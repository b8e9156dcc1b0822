// Package reportsink writes the per-extraction snapshot CSV report under
// single-writer discipline.
package reportsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
	"powerpositions/internal/platform/logger"
)

// Sink is the production domain.ReportSink. It serializes writes with an
// internal mutex
type Sink struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

// New rejects an empty output directory and ensures it exists
func New(dir string, loc *time.Location) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, perr.InvalidConfigurationf("output directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidConfiguration, "creating output directory %q", dir)
	}
	return &Sink{dir: dir, loc: loc}, nil
}

// Write renders positions to PowerPosition_<YYYYMMDD>_<HHMM>.csv and returns
// the written path
func (s *Sink) Write(ctx context.Context, positions []domain.Position, extractionLocal time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", perr.Cancelledf("report write cancelled before starting: %v", err)
	}

	if len(positions) != 24 {
		logger.Get().Warn().Int("count", len(positions)).
			Msg("writing a report with a position count other than 24")
	}

	local := extractionLocal.In(s.loc)
	name := fmt.Sprintf("PowerPosition_%s_%s.csv", local.Format("20060102"), local.Format("1504"))
	path := filepath.Join(s.dir, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", perr.Cancelledf("report write cancelled: %v", err)
	}

	var b strings.Builder
	b.WriteString("LocalTime,Volume\n")
	for _, p := range positions {
		b.WriteString(p.LocalTime)
		b.WriteByte(',')
		b.WriteString(s.formatVolume(p.Volume))
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeIOFailure, "writing report %q", path)
	}
	return path, nil
}

// formatVolume renders v with exactly two fractional digits and no thousands
// separator, independent of the host's OS locale
func (s *Sink) formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
