// Package tradesource holds the composition-root injection seam for the
// external trading-API client. The client itself is a named external
// collaborator and is intentionally not implemented here: production
// deployments provide their own domain.TradeSource and pass it to
// runner.New in place of Unconfigured
package tradesource

import (
	"context"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
)

// Unconfigured is a domain.TradeSource that always fails with a retryable
// error. It exists so the engine can be wired and exercised end to end
// (scheduler, runner, retry state machine, DLQ) before a real trading-API
// client is plugged in at composition
type Unconfigured struct{}

// Fetch always returns an unavailable error; the runner treats it as
// transient and retries per configuration before enqueuing to the DLQ
func (Unconfigured) Fetch(ctx context.Context, targetDate domain.Date) ([]domain.Trade, error) {
	return nil, perr.Unavailablef("no TradeSource configured for %s", targetDate)
}
