// Package timemodel converts between UTC instants, the 23:00 trading-day
// anchor, and period-indexed wall-clock labels, with explicit resolution of
// DST gaps (spring-forward) and overlaps (fall-back) at the anchor.
//
// Only Start constructs a wall-clock instant from (year, month, day, hour,
// minute) components, so it is the only place DST ambiguity can arise;
// PeriodToWallClock adds physical-duration hours to an already-resolved
// instant and never needs re-resolution.
package timemodel

import (
	"time"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
	"powerpositions/internal/platform/logger"
)

// Model is the production domain.TimeModel, backed by a single IANA zone
type Model struct {
	loc *time.Location
}

// New returns a Model for loc (e.g. time.LoadLocation("Europe/London"))
func New(loc *time.Location) *Model {
	return &Model{loc: loc}
}

// Start returns 23:00 on the day before date, resolved in the configured
// zone. Ambiguous (fall-back) wall clocks resolve to the earlier mapping;
// skipped (spring-forward) wall clocks resolve to the first valid instant
// after the gap
func (m *Model) Start(date domain.Date) (time.Time, error) {
	prevUTC := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	y, mo, d := prevUTC.Date()
	return m.resolveWallClock(y, mo, d, 23, 0, 0)
}

// PeriodToWallClock adds (k-1) hours of physical duration to start. k must
// be in [1,24]
func (m *Model) PeriodToWallClock(start time.Time, k int) (time.Time, error) {
	if k < 1 || k > 24 {
		return time.Time{}, perr.OutOfRangef("period %d out of range [1,24]", k)
	}
	return start.Add(time.Duration(k-1) * time.Hour), nil
}

// Format renders z as "HH:MM" in the configured zone
func (m *Model) Format(z time.Time) string {
	return z.In(m.loc).Format("15:04")
}

// ToLocal converts utc to the configured zone
func (m *Model) ToLocal(utc time.Time) time.Time {
	return utc.In(m.loc)
}

// resolveWallClock constructs the instant for the literal wall-clock
// (y,mo,d,hh,mm,ss) in m.loc, explicitly handling the gap/overlap cases
// instead of relying on time.Date's unspecified behavior for them
func (m *Model) resolveWallClock(y int, mo time.Month, d, hh, mm, ss int) (time.Time, error) {
	requested := hh*3600 + mm*60 + ss
	anchor := time.Date(y, mo, d, 12, 0, 0, 0, time.UTC)

	for _, tr := range m.transitionsNear(anchor) {
		offsetBefore := m.offsetAt(tr.Add(-time.Second))
		offsetAfter := m.offsetAt(tr)
		delta := offsetAfter - offsetBefore
		if delta == 0 {
			continue
		}

		atInstant := time.Unix(tr.Unix(), 0)
		beforeReading := atInstant.In(time.FixedZone("", offsetBefore))
		afterReading := atInstant.In(time.FixedZone("", offsetAfter))

		if delta > 0 {
			// Spring-forward: wall clock jumps from gapStart to gapEnd at tr.
			gapStart := hmsOf(beforeReading)
			gapEnd := hmsOf(afterReading)
			if requested >= gapStart && requested < gapEnd &&
				sameDate(beforeReading, y, mo, d) {
				logger.Get().Warn().
					Int("year", y).Str("month", mo.String()).Int("day", d).
					Str("wall_clock", clockLabel(hh, mm, ss)).
					Msg("trading day anchor falls in a DST gap; using first valid instant after the gap")
				return tr.In(m.loc), nil
			}
		} else {
			// Fall-back: wall clock repeats between repeatStart and repeatEnd.
			repeatStart := hmsOf(afterReading)
			repeatEnd := hmsOf(beforeReading)
			if requested >= repeatStart && requested < repeatEnd &&
				sameDate(afterReading, y, mo, d) {
				logger.Get().Warn().
					Int("year", y).Str("month", mo.String()).Int("day", d).
					Str("wall_clock", clockLabel(hh, mm, ss)).
					Msg("trading day anchor is ambiguous; choosing the earlier offset")
				earlier := time.Date(y, mo, d, hh, mm, ss, 0, time.FixedZone("", offsetBefore))
				return earlier.In(m.loc), nil
			}
		}
	}

	// No transition affects this wall clock: the unique, unambiguous mapping.
	return time.Date(y, mo, d, hh, mm, ss, 0, m.loc), nil
}

// transitionsNear returns the instants (within a day-plus-buffer window
// around anchor) at which the zone's UTC offset changes
func (m *Model) transitionsNear(anchor time.Time) []time.Time {
	start := anchor.Add(-27 * time.Hour)
	end := anchor.Add(27 * time.Hour)
	step := 30 * time.Minute

	var transitions []time.Time
	prevOffset := m.offsetAt(start)
	for t := start.Add(step); t.Before(end); t = t.Add(step) {
		off := m.offsetAt(t)
		if off == prevOffset {
			continue
		}
		lo, hi := t.Add(-step), t
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2)
			if m.offsetAt(mid) == prevOffset {
				lo = mid
			} else {
				hi = mid
			}
		}
		transitions = append(transitions, hi)
		prevOffset = off
	}
	return transitions
}

func (m *Model) offsetAt(t time.Time) int {
	_, off := t.In(m.loc).Zone()
	return off
}

func hmsOf(t time.Time) int {
	h, mi, s := t.Clock()
	return h*3600 + mi*60 + s
}

func sameDate(t time.Time, y int, mo time.Month, d int) bool {
	ty, tmo, td := t.Date()
	return ty == y && tmo == mo && td == d
}

func clockLabel(hh, mm, ss int) string {
	return time.Date(0, 1, 1, hh, mm, ss, 0, time.UTC).Format("15:04:05")
}
