// Package runner drives one extraction attempt end to end: fetch, aggregate,
// write report, write audit row, and on exhaustion enqueue to the dead
// letter queue. It owns the bounded retry state machine
package runner

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
	"powerpositions/internal/platform/logger"
)

// runtimeOverrideEnv is read fresh on every extraction (never cached), so an
// operator can retarget a live service on its next tick
const runtimeOverrideEnv = "DOTNET_RUNTIME"

// Config controls retry behavior and the runtime override
type Config struct {
	RetryAttempts int           // total attempts per extraction, e.g. 3 means up to 3 tries
	RetryDelay    time.Duration // delay between attempts

	// RunTimeOverride is the configured RunTime setting (ISO-8601 UTC
	// instant, or empty). It loses to the DOTNET_RUNTIME environment
	// variable and wins over the real wall clock
	RunTimeOverride string
}

// Runner is the production ExtractionRunner
type Runner struct {
	source domain.TradeSource
	agg    domain.Aggregator
	report domain.ReportSink
	audit  domain.AuditSink
	dlq    domain.DeadLetterQueue
	loc    *time.Location
	clock  domain.Clock
	sleep  domain.Sleeper
	cfg    Config
}

// New wires an ExtractionRunner from its capability ports
func New(
	source domain.TradeSource,
	agg domain.Aggregator,
	report domain.ReportSink,
	audit domain.AuditSink,
	dlq domain.DeadLetterQueue,
	loc *time.Location,
	clock domain.Clock,
	sleep domain.Sleeper,
	cfg Config,
) *Runner {
	return &Runner{
		source: source, agg: agg, report: report, audit: audit, dlq: dlq,
		loc: loc, clock: clock, sleep: sleep, cfg: cfg,
	}
}

// Run drives a fresh extraction, making up to cfg.RetryAttempts attempts in
// total while failures are retryable. On exhaustion the attempt is enqueued
// to the DLQ for later recovery.
//
// scheduledTimeUTC is the scheduler's wall-clock tick; it is only the last
// resort in the runtime override priority (env var, then configured
// RunTime, then this value), resolved fresh on every call
func (r *Runner) Run(ctx context.Context, scheduledTimeUTC time.Time) error {
	extractionTimeUTC := r.resolveRunTime(scheduledTimeUTC)
	return r.attempt(ctx, extractionTimeUTC, 1)
}

// RunRecovery replays a previously failed extraction pulled from the DLQ: a
// single attempt, no retry sub-loop. The DLQ entry's saved ExtractionTimeUTC
// is used verbatim, so a recovered entry's target date never shifts because
// of a runtime override set since it failed. The audit attempt counter
// resumes at entry.RetryCount+1, so a further failure re-enqueues with the
// count still climbing rather than restarting at 1
func (r *Runner) RunRecovery(ctx context.Context, entry domain.FailedExtraction) error {
	return r.attemptOnce(ctx, entry.ExtractionTimeUTC, entry.RetryCount+1, domain.AuditRecoveredFromDLQ)
}

// resolveRunTime applies the runtime override priority: the DOTNET_RUNTIME
// environment variable, if parseable as an RFC3339 instant; else the
// configured RunTime override, under the same rule; else fallback. Both
// sources are read fresh on every call, never cached, so a live service
// picks up a change on its next tick
func (r *Runner) resolveRunTime(fallback time.Time) time.Time {
	if raw := strings.TrimSpace(os.Getenv(runtimeOverrideEnv)); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
		logger.Get().Warn().Str("value", raw).Str("env", runtimeOverrideEnv).
			Msg("DOTNET_RUNTIME is not a parseable ISO-8601 instant; ignoring")
	}
	if raw := strings.TrimSpace(r.cfg.RunTimeOverride); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
		logger.Get().Warn().Str("value", raw).Msg("configured RunTime is not a parseable ISO-8601 instant; ignoring")
	}
	return fallback.UTC()
}

func (r *Runner) attempt(ctx context.Context, extractionTimeUTC time.Time, attempt int) error {
	attemptID := uuid.NewString()
	ctx = logger.WithAttempt(ctx, attemptID)
	log := logger.C(ctx)

	targetDate := domain.DateOf(extractionTimeUTC, r.loc)
	startLocal := extractionTimeUTC.In(r.loc)

	var lastErr error
	for {
		log.Info().Int("attempt", attempt).Str("target_date", targetDate.String()).Msg("extraction attempt starting")

		reportPath, runErr := r.runOnce(ctx, targetDate, extractionTimeUTC)
		endLocal := r.clock.Now().In(r.loc)

		if runErr == nil {
			r.logAudit(ctx, startLocal, endLocal, targetDate, domain.AuditDone, attempt, "", reportPath)
			log.Info().Int("attempt", attempt).Str("report", reportPath).Msg("extraction attempt succeeded")
			return nil
		}

		lastErr = runErr

		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) || perr.IsCode(runErr, perr.ErrorCodeCancelled) {
			r.logAudit(ctx, startLocal, endLocal, targetDate, domain.AuditCancelled, attempt, runErr.Error(), "")
			log.Warn().Err(runErr).Msg("extraction attempt cancelled")
			return runErr
		}

		if !perr.Retryable(runErr) || attempt >= r.cfg.RetryAttempts {
			break
		}

		r.logAudit(ctx, startLocal, endLocal, targetDate, domain.AuditRetryAttempt, attempt, runErr.Error(), "")
		log.Warn().Err(runErr).Int("attempt", attempt).Msg("extraction attempt failed; will retry")

		if err := r.sleep.Sleep(ctx, r.cfg.RetryDelay); err != nil {
			r.logAudit(ctx, startLocal, r.clock.Now().In(r.loc), targetDate, domain.AuditCancelled, attempt, err.Error(), "")
			return err
		}
		attempt++
	}

	endLocal := r.clock.Now().In(r.loc)
	r.logAudit(ctx, startLocal, endLocal, targetDate, domain.AuditFailed, attempt, lastErr.Error(), "")
	log.Error().Err(lastErr).Int("attempts", attempt).Msg("extraction exhausted retries; enqueuing to dead-letter queue")

	if err := r.enqueueFailed(ctx, extractionTimeUTC, r.cfg.RetryAttempts, "All retry attempts exhausted"); err != nil {
		return err
	}
	return lastErr
}

// attemptOnce runs the single-attempt pipeline exactly once with no retry
// sub-loop, used by RunRecovery. On a non-cancellation failure it enqueues
// back to the DLQ with RetryCount=attempt (the scheduler does not also
// re-enqueue: this is the one place recovery failures are recorded)
func (r *Runner) attemptOnce(ctx context.Context, extractionTimeUTC time.Time, attempt int, successStatus domain.AuditStatus) error {
	attemptID := uuid.NewString()
	ctx = logger.WithAttempt(ctx, attemptID)
	log := logger.C(ctx)

	targetDate := domain.DateOf(extractionTimeUTC, r.loc)
	startLocal := extractionTimeUTC.In(r.loc)

	log.Info().Int("attempt", attempt).Str("target_date", targetDate.String()).Msg("recovery attempt starting")

	reportPath, runErr := r.runOnce(ctx, targetDate, extractionTimeUTC)
	endLocal := r.clock.Now().In(r.loc)

	if runErr == nil {
		r.logAudit(ctx, startLocal, endLocal, targetDate, successStatus, attempt, "", reportPath)
		log.Info().Int("attempt", attempt).Str("report", reportPath).Msg("recovery attempt succeeded")
		return nil
	}

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) || perr.IsCode(runErr, perr.ErrorCodeCancelled) {
		r.logAudit(ctx, startLocal, endLocal, targetDate, domain.AuditCancelled, attempt, runErr.Error(), "")
		log.Warn().Err(runErr).Msg("recovery attempt cancelled")
		return runErr
	}

	r.logAudit(ctx, startLocal, endLocal, targetDate, domain.AuditFailed, attempt, runErr.Error(), "")
	log.Error().Err(runErr).Int("attempt", attempt).Msg("recovery attempt failed; re-enqueuing to dead-letter queue")

	if err := r.enqueueFailed(ctx, extractionTimeUTC, attempt, "Recovery attempt failed"); err != nil {
		return err
	}
	return runErr
}

func (r *Runner) enqueueFailed(ctx context.Context, extractionTimeUTC time.Time, retryCount int, lastErr string) error {
	if err := r.dlq.Enqueue(domain.FailedExtraction{
		ExtractionTimeUTC: extractionTimeUTC,
		FailedAtUTC:       r.clock.Now(),
		RetryCount:        retryCount,
		LastError:         lastErr,
	}); err != nil {
		logger.C(ctx).Error().Err(err).Msg("failed to enqueue failed extraction to dead-letter queue")
		return err
	}
	return nil
}

func (r *Runner) runOnce(ctx context.Context, targetDate domain.Date, extractionTimeUTC time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", perr.Cancelledf("attempt cancelled: %v", err)
	}

	trades, err := r.source.Fetch(ctx, targetDate)
	if err != nil {
		return "", err
	}

	positions, err := r.agg.Aggregate(trades, targetDate)
	if err != nil {
		return "", err
	}
	if len(positions) != 24 {
		return "", perr.Internalf("aggregation produced %d positions, expected 24", len(positions))
	}

	extractionLocal := extractionTimeUTC.In(r.loc)
	return r.report.Write(ctx, positions, extractionLocal)
}

func (r *Runner) logAudit(ctx context.Context, startLocal, endLocal time.Time, targetDate domain.Date,
	status domain.AuditStatus, attempt int, errMsg, reportFilename string) {
	if err := r.audit.LogAttempt(ctx, startLocal, endLocal, targetDate, status, attempt, errMsg, reportFilename); err != nil {
		logger.C(ctx).Error().Err(err).Msg("failed to write audit row")
	}
}
