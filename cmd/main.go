package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/tripsettle/internal/cache"
	"github.com/tinoosan/tripsettle/internal/config"
	httpapi "github.com/tinoosan/tripsettle/internal/httpapi/v1"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/meta"
	"github.com/tinoosan/tripsettle/internal/notify"
	"github.com/tinoosan/tripsettle/internal/service/balance"
	"github.com/tinoosan/tripsettle/internal/service/expense"
	"github.com/tinoosan/tripsettle/internal/service/trip"
	"github.com/tinoosan/tripsettle/internal/settlement"
	"github.com/tinoosan/tripsettle/internal/slug"
	"github.com/tinoosan/tripsettle/internal/storage/memory"
	pgstore "github.com/tinoosan/tripsettle/internal/storage/postgres"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := buildLogger(cfg)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tripsettle stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := settlement.New(settlement.WithDust(cfg.DustMinor))
	balanceCache := cache.NewLRU[balance.Snapshot](cfg.BalanceCacheSize, cfg.BalanceCacheTTL)
	balances := balance.New(store,
		balance.WithEngine(engine),
		balance.WithCache(balanceCache),
		balance.WithLogger(logger),
	)
	invalidate := func(_ context.Context, e notify.Event) error {
		balances.Invalidate(e.TripID)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	// Expense changes reach the balance cache either through the broker, so
	// every replica drops its stale entry, or directly in-process.
	var notifier expense.Notifier = notify.Func(invalidate)
	if cfg.AMQPURL != "" {
		client, err := notify.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer client.Close()
		notifier = client
		g.Go(func() error {
			err := client.Subscribe(ctx, invalidate)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("expense notifications: amqp", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("expense notifications: in-process")
	}

	srv := httpapi.New(httpapi.Services{
		Trips:    trip.New(store, store),
		Expenses: expense.New(store, store, expense.WithEngine(engine), expense.WithNotifier(notifier), expense.WithLogger(logger)),
		Balances: balances,
	}, store, logger, httpapi.WithAuth(httpapi.AuthConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}))

	janitor := cache.NewJanitor(time.Minute, logger, balanceCache, srv.BatchReplays())
	g.Go(func() error {
		janitor.Run(ctx)
		return nil
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	g.Go(func() error {
		logger.Info("tripsettle listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		return nil
	})
	return g.Wait()
}

// openStore picks postgres when DATABASE_URL is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (httpapi.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		store := memory.New()
		t := seedMemory(store)
		logDevSeed(logger, "memory", t)
		printDevSeedBanner(t)
		logger.Info("storage backend: memory")
		return store, func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}
	pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.DevSeed {
		t, err := pg.SeedDev(ctx)
		if err != nil {
			logger.Error("dev seed failed", "err", err)
		} else {
			logDevSeed(logger, "postgres", t)
			printDevSeedBanner(t)
		}
	}
	logger.Info("storage backend: postgres")
	return pg, pg.Close, nil
}

// seedMemory adds a demo trip so the API is usable right after start.
func seedMemory(store *memory.Store) ledger.Trip {
	t := ledger.Trip{
		ID:           uuid.New(),
		Name:         "Demo trip",
		OwnerID:      "alice",
		Participants: []string{"alice", "bob", "carol"},
		Metadata:     meta.Metadata{},
		CreatedAt:    time.Now().UTC(),
	}
	t.Slug = slug.ForTrip(t.Name, t.ID)
	store.SeedTrip(t)
	return t
}

// logDevSeed emits structured logs with useful IDs
func logDevSeed(l *slog.Logger, backend string, t ledger.Trip) {
	l.Info("DEV seed ("+backend+")", "trip_id", t.ID.String(), "owner_id", t.OwnerID, "participants", t.Participants)
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(t ledger.Trip) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("trip_id: %s\n", t.ID.String())
	fmt.Printf("participants: %s\n", strings.Join(t.Participants, ", "))
	fmt.Println("==================================================")
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
