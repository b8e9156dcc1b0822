// Package auditsink appends one row per extraction attempt to a daily,
// rotating CSV audit log
package auditsink

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

var header = []string{
	"StartTimeLocal", "EndTimeLocal", "TargetDate", "DurationSeconds",
	"Status", "Attempt", "ErrorMessage", "ReportFileName",
}

// auditTimeLayout is "YYYY-MM-DD HH:MM:SS" local time, no zone offset
const auditTimeLayout = "2006-01-02 15:04:05"

// Sink is the production domain.AuditSink. Files rotate daily, named by the
// local date of the attempt's end time
type Sink struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

// New rejects an empty audit directory and ensures it exists
func New(dir string, loc *time.Location) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, perr.InvalidConfigurationf("audit directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidConfiguration, "creating audit directory %q", dir)
	}
	return &Sink{dir: dir, loc: loc}, nil
}

// LogAttempt appends a row describing one extraction attempt. Write failures
// are logged as a warning and returned as an IOFailure error; the runner logs
// and discards that error, so the audit trail never aborts an extraction
func (s *Sink) LogAttempt(ctx context.Context, startLocal, endLocal time.Time, targetDate domain.Date,
	status domain.AuditStatus, attempt int, errorMessage, reportFilename string) error {

	if attempt < 1 {
		return perr.InvalidArgf("attempt must be >= 1, got %d", attempt)
	}
	if strings.TrimSpace(string(status)) == "" {
		return perr.InvalidArgf("status must not be empty")
	}

	row := []string{
		startLocal.In(s.loc).Format(auditTimeLayout),
		endLocal.In(s.loc).Format(auditTimeLayout),
		targetDate.String(),
		strconv.FormatFloat(endLocal.Sub(startLocal).Seconds(), 'f', 2, 64),
		string(status),
		strconv.Itoa(attempt),
		errorMessage,
		reportFilename,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	local := endLocal.In(s.loc)
	name := fmt.Sprintf("ExecutionAudit_%s.csv", local.Format("20060102"))
	path := filepath.Join(s.dir, name)

	if err := s.appendLocked(path, row); err != nil {
		logger.C(ctx).Warn().Err(err).Str("path", path).Msg("failed to write audit row; continuing")
		return perr.Wrapf(err, perr.ErrorCodeIOFailure, "appending audit row to %q", path)
	}
	return nil
}

func (s *Sink) appendLocked(path string, row []string) error {
	needsHeader := false
	if fi, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		needsHeader = true
	} else if fi.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	if needsHeader {
		writeCSVRow(&b, header)
	}
	writeCSVRow(&b, row)

	_, err = f.WriteString(b.String())
	return err
}

// writeCSVRow renders fields per RFC 4180: a field containing a comma,
// quote, or newline is wrapped in quotes, with internal quotes doubled
func writeCSVRow(b *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeCSVField(field))
	}
	b.WriteString("\r\n")
}

func escapeCSVField(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
