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

	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/accounts-ledger/internal/config"
	"github.com/tinoosan/accounts-ledger/internal/httpapi"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/service/account"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
	boltstore "github.com/tinoosan/accounts-ledger/internal/storage/bolt"
	"github.com/tinoosan/accounts-ledger/internal/storage/memory"
	mysqlstore "github.com/tinoosan/accounts-ledger/internal/storage/mysql"
	pgstore "github.com/tinoosan/accounts-ledger/internal/storage/postgres"
)

// ledgerStore is what every backend provides.
type ledgerStore interface {
	account.Repo
	account.Writer
	journal.Repo
	Ready(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("ledger service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeFn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	logger.Info("storage backend: "+cfg.Store, "currency", cfg.Currency)

	accounts := account.New(store, store,
		account.WithCurrency(cfg.Currency),
		account.WithPersistTimeout(cfg.PersistTimeout),
	)
	history := journal.New(store, store)

	if cfg.DevSeed {
		accs, err := seedDev(ctx, accounts)
		if err != nil {
			logger.Error("dev seed failed", "err", err)
		} else {
			logDevSeed(logger, cfg.Store, accs)
			printDevSeedBanner(accs)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(accounts, history, store, logger).Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ledger service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
			return err
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}

// openStore builds the configured backend and returns a func releasing it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledgerStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		if cfg.Migrate {
			if err := pgstore.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return pg, pg.Close, nil
	case config.StoreMySQL:
		my, err := mysqlstore.Open(ctx, cfg.MySQL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mysql: %w", err)
		}
		return my, closeLogged(logger, "mysql", my.Close), nil
	case config.StoreBolt:
		b, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt file %s: %w", cfg.BoltPath, err)
		}
		return b, closeLogged(logger, "bolt", b.Close), nil
	default:
		return memory.New(), func() {}, nil
	}
}

func closeLogged(l *slog.Logger, backend string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			l.Error("close store", "backend", backend, "err", err)
		}
	}
}

// seedDev creates two demo accounts through the engine. Existing numbers
// are looked up instead, so restarts against a durable store are harmless.
func seedDev(ctx context.Context, svc *account.Service) ([]ledger.Account, error) {
	seeds := []struct {
		number string
		units  int64
	}{
		{"DEV-0001", 100000},
		{"DEV-0002", 2500},
	}
	out := make([]ledger.Account, 0, len(seeds))
	for _, sd := range seeds {
		acc, err := svc.CreateAccount(ctx, sd.number, ledger.MustAmount(svc.Currency(), sd.units))
		if err != nil {
			existing, lookupErr := svc.GetAccountByNumber(ctx, sd.number)
			if lookupErr != nil {
				return nil, err
			}
			acc = existing
		}
		out = append(out, acc)
	}
	return out, nil
}

// logDevSeed emits structured logs with useful IDs
func logDevSeed(l *slog.Logger, backend string, accs []ledger.Account) {
	ids := map[string]string{}
	for _, a := range accs {
		ids[a.AccountNumber] = a.ID.String()
	}
	l.Info("DEV seed ("+backend+")", "ids", ids)
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(accs []ledger.Account) {
	fmt.Println("==================== DEV SEED ====================")
	for _, a := range accs {
		fmt.Printf("%s: %s (balance %s)\n", a.AccountNumber, a.ID.String(), ledger.FormatAmount(a.Balance))
	}
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

func buildLogger(cfg config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if strings.EqualFold(strings.TrimSpace(cfg.LogFormat), "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
