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

	"github.com/spf13/pflag"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/config"
	"github.com/Siwa-Docsecure/base/internal/httpapi"
	"github.com/Siwa-Docsecure/base/internal/obs"
	"github.com/Siwa-Docsecure/base/internal/records"
	"github.com/Siwa-Docsecure/base/internal/store/memory"
	"github.com/Siwa-Docsecure/base/internal/store/pg"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

// backend is every store the service needs. Both pg and memory satisfy it.
type backend interface {
	auth.UserStore
	auth.PermissionStore
	auth.RevocationStore
	auth.TenantChecker
	records.Store
	audit.Sink
}

func main() {
	if err := run(os.Args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		obs.Logger().Error("psms-api exited", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to a YAML config file (default $"+config.EnvConfigPath+")")
	showVersion := flagSet.Bool("version", false, "print the version and exit")
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("psms-api %s (%s)\n", version, commit)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := obs.SetLogLevel(cfg.Log.Level); err != nil {
		return err
	}
	logger := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	store, ready, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := auth.NewTokenService(store, store,
		auth.WithSigningSecret(cfg.Tokens.Secret),
		auth.WithRefreshSecret(cfg.Tokens.RefreshSecret),
		auth.WithIssuer(cfg.Tokens.Issuer),
		auth.WithAccessTTL(cfg.Tokens.AccessTTL),
		auth.WithRefreshTTL(cfg.Tokens.RefreshTTL),
		auth.WithTokenLogger(logger),
	)
	if err != nil {
		return err
	}
	recorder := audit.NewRecorder(store, audit.WithLogger(logger))
	engine := records.NewEngine(store, records.WithRecorder(recorder), records.WithLogger(logger))
	accounts, err := auth.NewAccounts(auth.AccountsConfig{
		Users:    store,
		Perms:    store,
		Tokens:   tokens,
		Tenants:  engine,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Deps{
		Tokens:         tokens,
		Accounts:       accounts,
		Guard:          auth.NewGuard(store, logger),
		Engine:         engine,
		Ready:          ready,
		Logger:         logger,
		Version:        version,
		RateBurst:      cfg.RateLimit.Burst,
		RatePerSec:     cfg.RateLimit.PerSecond,
		LoginBurst:     cfg.RateLimit.LoginBurst,
		LoginPerMinute: cfg.RateLimit.LoginPerMinute,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	go auth.NewRevocationSweeper(store, cfg.Revocation.SweepInterval, logger).Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting psms-api", "version", version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStore connects to Postgres when a DSN is configured and falls back
// to the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, httpapi.ReadyProbe, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database configured, using in-memory store")
		return memory.New(), httpapi.ReadyProbe{}, func() {}, nil
	}
	st, err := pg.Open(cfg.Database.DSN, pg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		TxAttempts:      cfg.Database.TxAttempts,
		Logger:          logger,
	})
	if err != nil {
		return nil, httpapi.ReadyProbe{}, nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pctx); err != nil {
		// Readiness reports the outage; the server still starts.
		logger.Warn("database not reachable at startup", "error", err)
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Warn("close db", "error", err)
		}
	}
	return st, httpapi.ReadyProbe{DB: st.DB()}, closeFn, nil
}
