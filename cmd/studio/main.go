package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/studio-scheduler/internal/application"
	"github.com/example/studio-scheduler/internal/config"
	"github.com/example/studio-scheduler/internal/credits"
	httptransport "github.com/example/studio-scheduler/internal/http"
	"github.com/example/studio-scheduler/internal/jobs"
	"github.com/example/studio-scheduler/internal/lock"
	"github.com/example/studio-scheduler/internal/metrics"
	"github.com/example/studio-scheduler/internal/notify"
	"github.com/example/studio-scheduler/internal/persistence/sqlstore"
	"github.com/example/studio-scheduler/internal/recurrence"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to read .env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired service graph and everything that must be closed.
type app struct {
	handler   http.Handler
	store     *sqlstore.Store
	scheduler *jobs.Scheduler
	closers   []func() error
}

func (a *app) Close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Error("failed to close resource", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		if a.scheduler != nil {
			if err := a.scheduler.Stop(shutdownCtx); err != nil {
				logger.Error("failed to stop propagation scheduler", "error", err)
			}
		}
	}()

	logger.Info("studio API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close(logger)
		}
	}()

	loc := cfg.Location()
	store, err := sqlstore.Open(ctx, sqlstore.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Location: loc})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLocker)

	publisher, err := newPublisher(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	m := metrics.New()
	ledger := credits.NewLedger(store,
		credits.WithLogger(logger),
		credits.WithObserver(application.NewCreditNotifier(publisher, logger)),
		credits.WithRecorder(m),
		credits.WithConcurrency(cfg.CreditConcurrency),
		credits.WithMaxAttempts(cfg.CreditMaxAttempts),
	)

	events := application.NewEventServiceWithLogger(store, ledger, loc, nil, time.Now, logger)
	propagations := application.NewPropagationServiceWithLogger(application.PropagationDeps{
		Templates:  store,
		Writer:     store,
		Credits:    ledger,
		Locker:     locker,
		Publisher:  publisher,
		Propagator: recurrence.NewPropagator(loc),
		Recorder:   m,
		LockTTL:    cfg.LockTTL,
		Now:        time.Now,
	}, logger)
	availability := application.NewAvailabilityServiceWithLogger(store, store, store, application.AvailabilityOptions{
		Location:    loc,
		HorizonDays: cfg.SlotHorizonDays,
		MaxResults:  cfg.SlotMaxResults,
		Recorder:    m,
	}, time.Now, logger)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Events:       httptransport.NewEventHandler(events, logger),
		Propagations: httptransport.NewPropagationHandler(propagations, logger),
		Slots:        httptransport.NewSlotHandler(availability, logger),
		Health:       store.Ping,
		Metrics:      m.Handler(),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			m.Middleware(httptransport.RouteLabel),
			httptransport.Recover(logger),
		},
	})

	if cfg.PropagationCronEnabled {
		job := jobs.NewMonthlyPropagation(store, propagations, loc, logger)
		a.scheduler, err = jobs.NewScheduler(cfg.PropagationCron, loc, job, time.Now, logger)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// newLocker uses Redis when a URL is configured so concurrent replicas
// share propagation locks.
func newLocker(ctx context.Context, cfg config.Config) (lock.Locker, func() error, error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker(time.Now), func() error { return nil }, nil
	}
	client, err := lock.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return lock.NewRedisLocker(client, "studio:"), client.Close, nil
}

func newPublisher(cfg config.Config) (notify.Publisher, error) {
	encoder := notify.NewEncoder(nil, nil)
	switch cfg.NotifyDriver {
	case config.NotifyNATS:
		p, err := notify.DialNATS(cfg.NATSURL, "studio.", encoder)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		return p, nil
	case config.NotifyAMQP:
		p, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, encoder)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		return p, nil
	case config.NotifyNone, "":
		return notify.Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported notify driver %q", cfg.NotifyDriver)
	}
}
