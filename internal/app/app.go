package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"morpho-rate-alerts/internal/alerting"
	"morpho-rate-alerts/internal/config"
	"morpho-rate-alerts/internal/fetcher"
	"morpho-rate-alerts/internal/logging"
	"morpho-rate-alerts/internal/metrics"
	"morpho-rate-alerts/internal/scheduler"
	"morpho-rate-alerts/internal/service"
	"morpho-rate-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newFetcher() fetcher.MarketFetcher {
	return fetcher.NewMorpho(fetcher.MorphoOptions{
		Endpoint:  a.Config.Market.Endpoint,
		UniqueKey: a.Config.Market.UniqueKey,
		ChainID:   a.Config.Market.ChainID,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: a.Config.Market.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(alerting.TelegramOptions{
		BotToken:           cfg.BotToken,
		ChatID:             cfg.ChatID,
		BaseURL:            cfg.APIBase,
		Timeout:            cfg.RequestTimeout,
		DisableLinkPreview: cfg.DisableLinkPreview,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.StateStore, func(), error) {
	store, err := storage.Open(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close state store failed")
		}
	}
	return store, closer, nil
}

// Check performs a single run: the entry point for an external scheduler tick.
func (a *App) Check(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(a.Config, nil, a.newFetcher(), store, a.newNotifier(), a.Logger)
	_, runErr := svc.Check(ctx, time.Now().UTC())

	if err := metrics.Push(ctx, a.Config.Metrics.PushgatewayURL, a.Config.Metrics.Job); err != nil {
		a.Logger.Warn().Err(err).Msg("push metrics failed")
	}
	return runErr
}

// Watch runs checks on the configured schedule until interrupted.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	svc := service.New(a.Config, sched, a.newFetcher(), store, a.newNotifier(), a.Logger)

	a.Logger.Info().
		Str("market", a.Config.Market.UniqueKey).
		Int("chain_id", a.Config.Market.ChainID).
		Msg("starting rate watcher")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("rate watcher stopped")
	return nil
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	BorrowAPY   float64
	Utilization float64
	Direction   alerting.Direction
}
