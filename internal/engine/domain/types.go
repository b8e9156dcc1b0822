// Package domain holds the engine's shared types and the capability
// interfaces (ports) it consumes. Nothing outside these types and
// interfaces is shared between the engine's components.
package domain

import "time"

// Date is a calendar date in the configured trading zone. It identifies
// which logical trading day a run is for
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String renders the date as YYYY-MM-DD
func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// DateOf extracts the calendar date of t as observed in loc
func DateOf(t time.Time, loc *time.Location) Date {
	lt := t.In(loc)
	y, m, d := lt.Date()
	return Date{Year: y, Month: m, Day: d}
}

// TradePeriod is one period record inside a Trade: a period index in [1,24]
// and the volume traded in that period
type TradePeriod struct {
	Period int
	Volume float64
}

// Trade is an opaque record containing an ordered array of period volumes.
// The engine does not interpret trade identity; it only sums
type Trade struct {
	Periods []TradePeriod
}

// Position is one row of a snapshot report: the local wall-clock label,
// the summed volume, and the period index it was derived from
type Position struct {
	LocalTime string
	Volume    float64
	Period    int
}

// FailedExtraction is a DLQ entry: an extraction that exhausted its retry
// budget (or failed recovery again), persisted for later recovery
type FailedExtraction struct {
	ExtractionTimeUTC time.Time
	FailedAtUTC       time.Time
	RetryCount        int
	LastError         string
}

// TargetDate derives the logical trading date of this entry in the given zone
func (f FailedExtraction) TargetDate(loc *time.Location) Date {
	return DateOf(f.ExtractionTimeUTC, loc)
}

// AuditStatus is the audit-row status taxonomy from the extraction runner
type AuditStatus string

const (
	// AuditDone marks a normal successful extraction
	AuditDone AuditStatus = "Done"
	// AuditRecoveredFromDLQ marks a success during RunRecovery
	AuditRecoveredFromDLQ AuditStatus = "RecoveredFromDLQ"
	// AuditRetryAttempt marks a non-final attempt that failed retryably
	AuditRetryAttempt AuditStatus = "RetryAttempt"
	// AuditFailed marks the final attempt failing
	AuditFailed AuditStatus = "Failed"
	// AuditCancelled marks cancellation observed during an attempt
	AuditCancelled AuditStatus = "Cancelled"
)
