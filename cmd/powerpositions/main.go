package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"powerpositions/internal/engine/aggregator"
	"powerpositions/internal/engine/auditsink"
	"powerpositions/internal/engine/dlq"
	"powerpositions/internal/engine/domain"
	"powerpositions/internal/engine/reportsink"
	"powerpositions/internal/engine/runner"
	"powerpositions/internal/engine/scheduler"
	"powerpositions/internal/engine/settings"
	"powerpositions/internal/engine/timemodel"
	"powerpositions/internal/engine/tradesource"
	"powerpositions/internal/ops/httpstatus"
	"powerpositions/internal/platform/logger"
)

func main() {
	l := logger.Get()

	cfg := settings.Load()
	if err := cfg.Validate(); err != nil {
		l.Panic().Err(err).Msg("invalid configuration")
	}

	loc, err := cfg.ResolveLocation()
	if err != nil {
		l.Panic().Err(err).Msg("failed to resolve configured time zone")
	}

	tm := timemodel.New(loc)
	agg := aggregator.New(tm)

	report, err := reportsink.New(cfg.OutputDirectory, loc)
	if err != nil {
		l.Panic().Err(err).Msg("failed to initialize report sink")
	}
	audit, err := auditsink.New(cfg.AuditDirectory, loc)
	if err != nil {
		l.Panic().Err(err).Msg("failed to initialize audit sink")
	}
	queue, err := dlq.New(cfg.DlqDirectory)
	if err != nil {
		l.Panic().Err(err).Msg("failed to initialize dead-letter queue")
	}

	var source domain.TradeSource = tradesource.Unconfigured{}

	rn := runner.New(
		source, agg, report, audit, queue,
		loc, domain.SystemClock{}, domain.RealSleeper{},
		runner.Config{
			RetryAttempts:   cfg.RetryAttempts,
			RetryDelay:      cfg.RetryDelay(),
			RunTimeOverride: cfg.RunTime,
		},
	)

	sched := scheduler.New(rn, queue, domain.SystemClock{}, cfg.Interval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ops *httpstatus.Server
	if cfg.OpsListenAddr != "" {
		ops = httpstatus.NewServer(cfg.OpsListenAddr, queue)
		sched.OnDrained = ops.MarkReady
		go func() {
			if err := ops.Run(ctx); err != nil {
				l.Error().Err(err).Msg("ops http server stopped unexpectedly")
			}
		}()
	}

	l.Info().Msg("power-positions extraction engine starting")
	if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
		l.Error().Err(err).Msg("scheduler stopped unexpectedly")
	}

	if ops != nil {
		if err := ops.Shutdown(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to shut down ops http server")
		}
	}
	l.Info().Msg("power-positions extraction engine stopped")
}
