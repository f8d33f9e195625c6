package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/diegodella1/slackalerts/internal/alerting"
	"github.com/diegodella1/slackalerts/internal/cache"
	"github.com/diegodella1/slackalerts/internal/config"
	"github.com/diegodella1/slackalerts/internal/events"
	"github.com/diegodella1/slackalerts/internal/feed"
	"github.com/diegodella1/slackalerts/internal/scheduler"
	"github.com/diegodella1/slackalerts/internal/server"
	"github.com/diegodella1/slackalerts/internal/service"
	"github.com/diegodella1/slackalerts/internal/storage"
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

func (a *App) newFeed() feed.Fetcher {
	return feed.NewRoxom(feed.RoxomOptions{
		BaseURL:   a.Config.Feed.BaseURL,
		APIKey:    a.Config.Feed.APIKey,
		Source:    a.Config.Feed.Source,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newDispatcher() alerting.Dispatcher {
	return alerting.NewWebhookDispatcher(a.Config.Alerting.DispatchTimeout, a.Logger)
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

func (a *App) openRedis(ctx context.Context) *redis.Client {
	if a.Config.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn().Err(err).Str("addr", a.Config.Redis.Addr).Msg("redis unreachable; cache and publish disabled")
		_ = client.Close()
		return nil
	}
	return client
}

func (a *App) buildDeps(store *storage.Store, rdb *redis.Client, sched *scheduler.Scheduler, bus *events.Bus) service.Deps {
	deps := service.Deps{
		Scheduler:  sched,
		Feed:       a.newFeed(),
		Dispatcher: a.newDispatcher(),
	}

	if store != nil {
		deps.Samples = store
		deps.Rules = store
		deps.Alerts = store
		deps.Webhooks = store
		deps.Poller = store
		deps.Locker = store
	}

	publishers := events.Multi{}
	if bus != nil {
		publishers = append(publishers, bus)
	}
	if rdb != nil {
		deps.Cache = cache.New(rdb, a.Logger)
		publishers = append(publishers, events.NewRedisPublisher(rdb, a.Config.Redis.Channel, a.Logger))
	}
	if len(publishers) > 0 {
		deps.Publisher = publishers
	}

	return deps
}

// Run executes the long-running polling service and, when enabled, the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rdb := a.openRedis(ctx)
	if rdb != nil {
		defer rdb.Close()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	bus := events.NewBus(a.Logger)
	svc := service.New(a.Config, a.buildDeps(store, rdb, sched, bus), a.Logger)

	errCh := make(chan error, 2)
	running := 1

	go func() {
		errCh <- svc.Run(ctx)
	}()

	if a.Config.Server.Enabled {
		var rules storage.RuleStore
		var webhooks storage.WebhookStore
		if store != nil {
			rules = store
			webhooks = store
		}
		srv := server.New(a.Config.Server, svc, rules, webhooks, bus, a.Logger)
		running++
		go func() {
			errCh <- srv.Start(ctx, a.Config.Server.ShutdownTimeout)
		}()
	}

	a.Logger.Info().Msg("starting alerting service")

	var firstErr error
	for i := 0; i < running; i++ {
		runErr := <-errCh
		cancel()
		if runErr != nil && !errors.Is(runErr, context.Canceled) && firstErr == nil {
			firstErr = runErr
		}
	}

	if firstErr != nil {
		a.Logger.Error().Err(firstErr).Msg("service terminated with error")
		return firstErr
	}

	a.Logger.Info().Msg("alerting service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}
