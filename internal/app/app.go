package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ais-diff-events/internal/config"
	"ais-diff-events/internal/diff"
	"ais-diff-events/internal/fetcher"
	"ais-diff-events/internal/risk"
	"ais-diff-events/internal/scheduler"
	"ais-diff-events/internal/service"
	"ais-diff-events/internal/storage"
	"ais-diff-events/internal/storage/memory"
	"ais-diff-events/internal/storage/postgres"
	"ais-diff-events/internal/storage/sqlite"
	"ais-diff-events/internal/vessel"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeed() fetcher.VesselFetcher {
	return fetcher.NewClient(fetcher.Options{
		BaseURL:   a.Config.Feed.BaseURL,
		APIKey:    a.Config.Feed.APIKey,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newEngine(index diff.EventIndex) *diff.Engine {
	loc := a.Config.Port.Location()
	rules := a.Config.Rules

	classifier := risk.New(risk.Rules{
		WarnHours:     rules.StaleWarnHours,
		CriticalHours: rules.StaleCriticalHours,
	}, loc)

	cfg := diff.Config{
		Arrival: []diff.ArrivalThreshold{
			{Type: vessel.EventArrivingSoon, Within: rules.ArrivalSoon},
			{Type: vessel.EventArrivingImminent, Within: rules.ArrivalImminent},
			{Type: vessel.EventArrivingUrgent, Within: rules.ArrivalUrgent},
		},
		DraughtSpike:       decimal.NewFromFloat(rules.DraughtSpike),
		StaleWarnHours:     rules.StaleWarnHours,
		StaleCriticalHours: rules.StaleCriticalHours,
		Location:           loc,
	}
	return diff.New(cfg, classifier, index, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	switch a.Config.Database.Driver {
	case "postgres":
		if a.Config.Database.DSN == "" {
			return nil, nil, errors.New("database.dsn is required for the postgres driver")
		}
		pool, err := postgres.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store := postgres.NewStore(pool)
		return store, store.Close, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, a.Config.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "memory":
		a.Logger.Warn().Msg("memory store selected; data is lost on exit")
		store := memory.New()
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database.driver %q", a.Config.Database.Driver)
	}
}

// Run executes the long-running pipeline service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		RunAtStart:   a.Config.Scheduler.RunAtStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	feed := a.newFeed()
	engine := a.newEngine(store)

	svc := service.New(a.Config, sched, feed, store, engine, a.Logger)

	a.Logger.Info().
		Str("port", a.Config.Port.Code).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting pipeline service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline service stopped")
	return nil
}

// ExportOptions hold parameters for exporting daily aggregates.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// RecomputeOptions configure the aggregate recompute job.
type RecomputeOptions struct {
	From time.Time
	To   time.Time
}

// SimulateOptions name the snapshot files diffed offline.
type SimulateOptions struct {
	PrevPath string
	CurPath  string
}
