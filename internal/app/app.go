package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rwa-price-aggregator/internal/alerting"
	"rwa-price-aggregator/internal/cache"
	"rwa-price-aggregator/internal/config"
	"rwa-price-aggregator/internal/feed"
	"rwa-price-aggregator/internal/pricing"
	"rwa-price-aggregator/internal/scheduler"
	"rwa-price-aggregator/internal/server"
	"rwa-price-aggregator/internal/service"
	"rwa-price-aggregator/internal/storage"
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

func (a *App) newRegistry() *feed.Registry {
	feeds := a.Config.Feeds
	registry := feed.NewRegistry(a.Logger)
	registry.SetTimeout(feeds.FetchTimeout)

	if feeds.Kraken.Enabled {
		registry.Register(feed.NewKraken(feed.KrakenOptions{
			BaseURL:           feeds.Kraken.BaseURL,
			Timeout:           feeds.Kraken.RequestTimeout,
			UserAgent:         feeds.UserAgent,
			RequestsPerSecond: feeds.Kraken.RequestsPerSecond,
		}, a.Logger))
	}

	if feeds.Bybit.Enabled {
		registry.Register(feed.NewBybit(feed.BybitOptions{
			BaseURL:   feeds.Bybit.BaseURL,
			Timeout:   feeds.Bybit.RequestTimeout,
			UserAgent: feeds.UserAgent,
		}, a.Logger))
	}

	if feeds.Uniswap.Enabled {
		registry.Register(feed.NewUniswap(feed.UniswapOptions{
			SubgraphURL: feeds.Uniswap.SubgraphURL,
			Timeout:     feeds.Uniswap.RequestTimeout,
			APIKey:      feeds.Uniswap.APIKey,
		}, a.Logger))
	}

	if feeds.Onchain.Enabled {
		pools := make(map[string]feed.PoolConfig, len(feeds.Onchain.Pools))
		for symbol, pool := range feeds.Onchain.Pools {
			pools[symbol] = feed.PoolConfig{
				Address:        pool.Address,
				Invert:         pool.Invert,
				Token0Decimals: pool.Token0Decimals,
				Token1Decimals: pool.Token1Decimals,
				FeeBps:         pool.FeeBps,
			}
		}
		registry.Register(feed.NewOnchain(feed.OnchainOptions{
			RPCURL:  feeds.Onchain.RPCURL,
			Timeout: feeds.Onchain.RequestTimeout,
			Pools:   pools,
		}, a.Logger))
	}

	return registry
}

// newNotifier builds the Postmark delivery channel. An empty server
// token yields the notifier's dev mode, which logs instead of sending.
func (a *App) newNotifier() alerting.Notifier {
	email := a.Config.Alerts.Email
	return alerting.NewEmailNotifier(email.ServerToken, email.FromAddress, email.APIBase, email.RequestTimeout, a.Logger)
}

// newSpreadState 根据配置选择 Redis 或进程内的 spread 状态存储。
func (a *App) newSpreadState(ctx context.Context) (cache.SpreadStateStore, func(), error) {
	if !a.Config.Redis.Enabled {
		return cache.NewMemorySpreadState(), nil, nil
	}

	rdb, err := cache.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		if err := rdb.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close redis client")
		}
	}
	return cache.NewRedisSpreadState(rdb, a.Config.Alerts.SpreadStateTTL), closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newPoller(store *storage.Store) *service.Poller {
	return service.NewPoller(store, store, store, a.newRegistry(), service.PollerOptions{
		Locker:    store,
		LockKey:   a.Config.Poller.AdvisoryLockKey,
		Retention: a.Config.Poller.Retention,
	}, a.Logger)
}

func (a *App) newChecker(store *storage.Store, state cache.SpreadStateStore) *service.Checker {
	calc := pricing.NewCalculator(a.Config.Poller.MaxStaleness)
	return service.NewChecker(store, store, store, store, calc, alerting.NewPolicy(), a.newNotifier(), state, a.Logger)
}

// Run executes the polling and alert-evaluation loops until the
// context dies or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot run")
	}
	if closeStore != nil {
		defer closeStore()
	}

	poller := a.newPoller(store)

	group, ctx := errgroup.WithContext(ctx)

	pollSched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Poller.Interval,
		AlignToStart: a.Config.Poller.AlignToCycle,
		StartupDelay: a.Config.Poller.StartupDelay,
		Name:         "poller_scheduler",
	}, a.Logger)
	group.Go(func() error {
		return pollSched.Run(ctx, poller.RunCycle)
	})

	if a.Config.Alerts.Enabled {
		state, closeState, err := a.newSpreadState(ctx)
		if err != nil {
			return err
		}
		if closeState != nil {
			defer closeState()
		}

		checker := a.newChecker(store, state)
		checkSched := scheduler.New(scheduler.Options{
			Interval: a.Config.Alerts.CheckInterval,
			Name:     "checker_scheduler",
		}, a.Logger)
		group.Go(func() error {
			return checkSched.Run(ctx, checker.RunCycle)
		})
	} else {
		a.Logger.Warn().Msg("alerts.enabled is false; alert evaluation disabled")
	}

	a.Logger.Info().Msg("starting aggregation service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("aggregation service stopped")
	return nil
}

// Serve runs the JSON API, optionally alongside the polling loops.
func (a *App) Serve(ctx context.Context, withPoller bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot serve")
	}
	if closeStore != nil {
		defer closeStore()
	}

	calc := pricing.NewCalculator(a.Config.Poller.MaxStaleness)
	aggregator := service.NewAggregator(store, store, store, calc, a.Logger)
	subscriptions := service.NewSubscriptions(store, store, a.Logger)

	handler := server.NewHandler(aggregator, store, subscriptions, a.Logger)
	srv := server.NewServer(a.Config.Server, handler, a.Logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withPoller {
		poller := a.newPoller(store)
		pollSched := scheduler.New(scheduler.Options{
			Interval:     a.Config.Poller.Interval,
			AlignToStart: a.Config.Poller.AlignToCycle,
			StartupDelay: a.Config.Poller.StartupDelay,
			Name:         "poller_scheduler",
		}, a.Logger)
		group.Go(func() error {
			return pollSched.Run(ctx, poller.RunCycle)
		})

		if a.Config.Alerts.Enabled {
			state, closeState, err := a.newSpreadState(ctx)
			if err != nil {
				return err
			}
			if closeState != nil {
				defer closeState()
			}

			checker := a.newChecker(store, state)
			checkSched := scheduler.New(scheduler.Options{
				Interval: a.Config.Alerts.CheckInterval,
				Name:     "checker_scheduler",
			}, a.Logger)
			group.Go(func() error {
				return checkSched.Run(ctx, checker.RunCycle)
			})
		}
	}

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("server stopped")
	return nil
}

// FetchOnce runs a single polling cycle and exits. Useful for cron
// driven deployments and for smoke-testing feed credentials.
func (a *App) FetchOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot fetch")
	}
	if closeStore != nil {
		defer closeStore()
	}

	poller := a.newPoller(store)
	return poller.RunCycle(ctx, time.Now().UTC())
}

// ExportOptions hold parameters for exporting spread history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol       string
	IncludeStale bool
}
