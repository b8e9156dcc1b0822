// Package aggregator sums trade periods into 24 hourly Positions for a
// trading day.
package aggregator

import (
	"sort"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
)

// Aggregator is the production domain.Aggregator, backed by a TimeModel for
// period-to-wall-clock labeling
type Aggregator struct {
	tm domain.TimeModel
}

// New returns an Aggregator that labels positions using tm
func New(tm domain.TimeModel) *Aggregator {
	return &Aggregator{tm: tm}
}

// Aggregate flattens all trades' periods, sums volume per period, and
// labels each with its local wall-clock time for targetDate
func (a *Aggregator) Aggregate(trades []domain.Trade, targetDate domain.Date) ([]domain.Position, error) {
	if trades == nil {
		return nil, perr.InvalidInputf("trades reference is absent")
	}

	totals := make(map[int]float64)
	n := 0
	for _, trade := range trades {
		for _, p := range trade.Periods {
			totals[p.Period] += p.Volume
			n++
		}
	}

	if n == 0 || n%24 != 0 {
		return nil, perr.InvalidPeriodCountf("%d periods: expected a positive multiple of 24", n)
	}

	start, err := a.tm.Start(targetDate)
	if err != nil {
		return nil, err
	}

	periods := make([]int, 0, len(totals))
	for k := range totals {
		periods = append(periods, k)
	}
	sort.Ints(periods)

	positions := make([]domain.Position, 0, len(periods))
	for _, k := range periods {
		z, err := a.tm.PeriodToWallClock(start, k)
		if err != nil {
			return nil, err
		}
		positions = append(positions, domain.Position{
			LocalTime: a.tm.Format(z),
			Volume:    totals[k],
			Period:    k,
		})
	}
	return positions, nil
}
