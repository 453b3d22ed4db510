package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/Hunga9k50doker/spheron/internal/auth"
	"github.com/Hunga9k50doker/spheron/internal/client"
	"github.com/Hunga9k50doker/spheron/internal/config"
	"github.com/Hunga9k50doker/spheron/internal/endpoint"
	"github.com/Hunga9k50doker/spheron/internal/identity"
	"github.com/Hunga9k50doker/spheron/internal/loader"
	"github.com/Hunga9k50doker/spheron/internal/logging"
	"github.com/Hunga9k50doker/spheron/internal/metrics"
	"github.com/Hunga9k50doker/spheron/internal/models"
	"github.com/Hunga9k50doker/spheron/internal/scheduler"
	"github.com/Hunga9k50doker/spheron/internal/store"
	"github.com/Hunga9k50doker/spheron/internal/workflow"
)

const interBatchDelay = 3 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON settings file")
	flag.Parse()

	bootstrap := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrap.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		bootstrap.Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting spheron engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, collector, logger)
	}

	identityTable, tokenTable, err := buildTables(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to init persisted tables", "error", err)
		os.Exit(1)
	}

	accounts, err := loadAccounts(cfg, logger)
	if err != nil {
		logger.Error("failed to load inputs", "error", err)
		os.Exit(1)
	}

	if !cfg.Accounts.UseProxy {
		logger.Warn("running without proxies, all accounts share the local egress IP")
	}

	resolution, err := endpoint.NewResolver(cfg.API, logger).Resolve(ctx)
	if err != nil {
		logger.Error("cannot resolve API origin", "error", err)
		os.Exit(1)
	}
	logger.Info("resolved API origin", "origin", resolution.Origin, "message", resolution.Message)

	ids := identity.NewManager(identityTable)
	// Pin every account's identity before the first pass so concurrent
	// workers only ever read assignments.
	for _, acc := range accounts {
		if _, err := ids.Identity(ctx, acc.Key); err != nil {
			logger.Error("failed to assign identity", "account", acc.Key, "error", err)
			os.Exit(1)
		}
	}

	policy := client.Policy{
		Retries:        cfg.Engine.Retries,
		Delay:          cfg.Engine.RequestDelay,
		RateLimitDelay: cfg.Engine.RateLimitDelay,
	}
	wfCfg := workflow.Config{
		RefCode:       cfg.API.RefCode,
		UseProxy:      cfg.Accounts.UseProxy,
		StartDelayMin: cfg.Engine.StartDelayMin,
		StartDelayMax: cfg.Engine.StartDelayMax,
	}

	newTasks := func() []scheduler.Task {
		tasks := make([]scheduler.Task, 0, len(accounts))
		for _, acc := range accounts {
			tasks = append(tasks, func(ctx context.Context) error {
				id, err := ids.Identity(ctx, acc.Key)
				if err != nil {
					return err
				}
				accLogger := logging.ForAccount(logger, acc.Key, acc.Index)
				c := client.New(acc, resolution.Origin, id, policy, client.Deps{
					Tokens:  tokenTable,
					Metrics: collector,
					Logger:  accLogger,
				})
				return workflow.New(acc, c, wfCfg, accLogger, workflow.Deps{}).Run(ctx)
			})
		}
		return tasks
	}

	pool := &scheduler.Pool{
		Limit:      cfg.Concurrency(),
		Timeout:    cfg.Engine.AccountTimeout,
		BatchDelay: interBatchDelay,
		Logger:     logger,
	}
	abortOn := func(err error) bool {
		return cfg.Engine.ExitOnAuthFailure && errors.Is(err, client.ErrCredentialExpired)
	}
	runner := scheduler.NewRunner(pool, cfg.Engine.Cooldown, newTasks, abortOn, logger, collector)

	if err := runner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run aborted", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// loadAccounts reads the credential and proxy files and pairs them up. A
// proxy shortfall in proxy mode is a configuration error reported before any
// work starts.
func loadAccounts(cfg config.Config, logger *slog.Logger) ([]models.Account, error) {
	credentials, err := loader.Lines(cfg.Accounts.CredentialsFile)
	if err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		return nil, errors.New("no credentials loaded")
	}

	var proxies []string
	if cfg.Accounts.UseProxy {
		proxies, err = loader.Lines(cfg.Accounts.ProxiesFile)
		if err != nil {
			return nil, err
		}
		if len(proxies) < len(credentials) {
			logger.Error("account and proxy counts must match",
				"accounts", len(credentials), "proxies", len(proxies))
			return nil, errors.New("not enough proxies for the loaded accounts")
		}
	}

	accounts := make([]models.Account, 0, len(credentials))
	for i, credential := range credentials {
		key, err := auth.EmailClaim(credential)
		if err != nil {
			logger.Warn("skipping undecodable credential", "line", i+1, "error", err)
			continue
		}
		acc := models.Account{Key: key, Credential: credential, Index: i}
		if cfg.Accounts.UseProxy {
			acc.Proxy = proxies[i]
		}
		accounts = append(accounts, acc)
	}
	if len(accounts) == 0 {
		return nil, errors.New("no usable accounts after decoding credentials")
	}

	return accounts, nil
}

// buildTables selects the persisted table backend: Postgres when a DSN is
// configured, JSON files otherwise.
func buildTables(ctx context.Context, cfg config.StoreConfig) (store.Table, store.Table, error) {
	if cfg.DatabaseDSN == "" {
		identityTable, err := store.NewFileTable(cfg.IdentityFile)
		if err != nil {
			return nil, nil, err
		}
		tokenTable, err := store.NewFileTable(cfg.TokenFile)
		if err != nil {
			return nil, nil, err
		}
		return identityTable, tokenTable, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, err
	}

	identityTable, err := store.NewPostgresTable(db, "session_identities")
	if err != nil {
		return nil, nil, err
	}
	tokenTable, err := store.NewPostgresTable(db, "session_tokens")
	if err != nil {
		return nil, nil, err
	}
	for _, table := range []*store.PostgresTable{identityTable, tokenTable} {
		if err := table.Init(ctx); err != nil {
			return nil, nil, err
		}
	}

	return identityTable, tokenTable, nil
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "error", err)
	}
}
