package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/alerting"
	"morpho-rate-alerts/internal/config"
	"morpho-rate-alerts/internal/fetcher"
	"morpho-rate-alerts/internal/logging"
	"morpho-rate-alerts/internal/metrics"
	"morpho-rate-alerts/internal/scheduler"
	"morpho-rate-alerts/internal/storage"
)

// Result describes what a single check did.
type Result struct {
	RunID    string
	Outcome  string
	Previous storage.AlertState
	Snapshot fetcher.MarketSnapshot
	Decision alerting.Decision
}

// Service orchestrates fetching, evaluation, notification, and state persistence.
type Service struct {
	scheduler *scheduler.Scheduler
	market    fetcher.MarketFetcher
	store     storage.StateStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	rule     alerting.Rule
	locker   storage.Locker
	chainTag string
}

// New constructs the alerting service.
func New(cfg *config.Config, sched *scheduler.Scheduler, market fetcher.MarketFetcher, store storage.StateStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.Locker
	if cfg.State.Lock {
		if l, ok := store.(storage.Locker); ok {
			locker = l
		}
	}

	return &Service{
		scheduler: sched,
		market:    market,
		store:     store,
		notifier:  notifier,
		logger:    logging.Component(logger, "service"),
		rule: alerting.Rule{
			MarketKey: cfg.Market.UniqueKey,
			ChainID:   cfg.Market.ChainID,
			Threshold: decimal.NewFromFloat(cfg.Alerting.Threshold),
		},
		locker:   locker,
		chainTag: strconv.Itoa(cfg.Market.ChainID),
	}
}

// Rule exposes the evaluated alert rule.
func (s *Service) Rule() alerting.Rule {
	return s.rule
}

// Run drives Check on every scheduler tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, tick time.Time) error {
		_, err := s.Check(ctx, tick)
		return err
	})
}

// Check performs one read-decide-notify-write cycle.
//
// Any collaborator failure aborts the run: nothing is sent after a fetch
// failure and the state is not written after a failed send.
func (s *Service) Check(ctx context.Context, now time.Time) (Result, error) {
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Logger()
	started := time.Now()

	res, err := s.check(ctx, now, logger)
	res.RunID = runID
	if err != nil {
		res.Outcome = metrics.OutcomeFailed
	}

	metrics.RunsTotal.WithLabelValues(res.Outcome).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		logger.Error().Err(err).Msg("check failed")
		return res, err
	}
	logger.Info().Str("outcome", res.Outcome).Msg("check finished")
	return res, nil
}

func (s *Service) check(ctx context.Context, now time.Time, logger zerolog.Logger) (Result, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return Result{}, err
	}
	if !proceed {
		logger.Warn().Msg("skip run because the state lock is held elsewhere")
		return Result{Outcome: metrics.OutcomeSkipped}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	res, err := s.evaluate(ctx, now, logger)
	if err != nil {
		return res, err
	}

	decision := res.Decision
	if decision.Notify {
		note := alerting.Notification{Direction: decision.Direction, Text: decision.Message}
		if err := s.notifier.Notify(ctx, note); err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(decision.Direction), "failed").Inc()
			return res, fmt.Errorf("send notification: %w", err)
		}
		metrics.NotificationsTotal.WithLabelValues(string(decision.Direction), "sent").Inc()
		res.Outcome = metrics.OutcomeNotified
	} else {
		res.Outcome = metrics.OutcomeSilent
	}

	if err := s.store.Save(ctx, decision.State); err != nil {
		return res, fmt.Errorf("save state: %w", err)
	}
	return res, nil
}

// Preview loads state, fetches the market, and evaluates without notifying or saving.
func (s *Service) Preview(ctx context.Context, now time.Time) (Result, error) {
	return s.evaluate(ctx, now, s.logger)
}

func (s *Service) evaluate(ctx context.Context, now time.Time, logger zerolog.Logger) (Result, error) {
	prev := s.store.Load(ctx)

	snap, err := s.market.FetchMarket(ctx)
	if err != nil {
		metrics.FetchFailuresTotal.Inc()
		return Result{Previous: prev}, fmt.Errorf("fetch market: %w", err)
	}

	decision := alerting.Evaluate(s.rule, snap, prev, now)
	s.observe(snap, decision)

	logger.Info().
		Str("borrow_apy", snap.BorrowAPY.String()).
		Str("utilization", snap.Utilization.String()).
		Str("threshold", s.rule.Threshold.String()).
		Bool("was_above", prev.WasAbove).
		Bool("is_above", decision.IsAbove).
		Str("direction", string(decision.Direction)).
		Msg("market evaluated")

	return Result{Previous: prev, Snapshot: snap, Decision: decision}, nil
}

func (s *Service) observe(snap fetcher.MarketSnapshot, decision alerting.Decision) {
	labels := []string{s.rule.MarketKey, s.chainTag}
	metrics.BorrowAPY.WithLabelValues(labels...).Set(snap.BorrowAPY.InexactFloat64())
	metrics.Utilization.WithLabelValues(labels...).Set(snap.Utilization.InexactFloat64())
	metrics.Threshold.WithLabelValues(labels...).Set(s.rule.Threshold.InexactFloat64())
	above := 0.0
	if decision.IsAbove {
		above = 1
	}
	metrics.Above.WithLabelValues(labels...).Set(above)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryLock(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire state lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
