package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"miniSwap/internal/chain"
	"miniSwap/internal/config"
	"miniSwap/internal/contract"
	"miniSwap/internal/orchestrator"
	"miniSwap/internal/session"
	"miniSwap/internal/storage"
	"miniSwap/internal/storage/postgres"
	"miniSwap/internal/wallet"
)

// app wires the ledger client, the wallet, the mirror and the orchestrator.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	client  *chain.Client
	pool    *contract.Pool
	keyring *wallet.Keyring
	store   *session.Store
	cache   *session.CacheFile
	watcher *session.Watcher
	orch    *orchestrator.Orchestrator
	pg      *postgres.Store
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newApp connects to the ledger and loads the mirror for the active identity.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	poolAddr, err := cfg.PoolAddress()
	if err != nil {
		return nil, err
	}

	keys, err := wallet.LoadKeys(cfg.Keys, cfg.Keystores, cfg.KeystorePassword)
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, client: client}

	a.keyring = wallet.NewKeyring(client, keys, logger.Named("wallet"))
	a.pool, err = contract.NewPool(contract.Config{
		Address:      poolAddr,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, a.keyring, client, logger.Named("ledger"))
	if err != nil {
		a.Close()
		return nil, err
	}

	var sink session.SnapshotSink
	journal := []storage.Storage{storage.NewJsonlStorage(cfg.Journal)}
	if cfg.PGDSN != "" {
		a.pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := a.pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		sink = a.pg
		journal = append(journal, a.pg)
	}

	a.store = session.NewStore()
	a.cache = session.NewCacheFile(cfg.CacheFile)
	a.watcher = session.NewWatcher(a.pool, a.store, session.Options{
		Cache:  a.cache,
		Sink:   sink,
		Logger: logger.Named("session"),
	})
	a.orch = orchestrator.New(a.pool, a.watcher, orchestrator.Config{
		RefreshOnFailure: cfg.RefreshOnFailure,
		Journal:          storage.Multi(journal...),
	}, logger.Named("orchestrator"))

	logger.Info("miniswap start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", poolAddr.Hex()),
		zap.Int("identities", len(a.keyring.Accounts())),
		zap.String("journal", cfg.Journal),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)
	return a, nil
}

// load applies the current identities and performs the first reload.
func (a *app) load(ctx context.Context) (func(), error) {
	return a.watcher.Start(ctx, a.keyring)
}

func (a *app) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	_ = a.logger.Sync()
}
