package main

import (
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/client/api"
	"github.com/spec-kit/folio/internal/client/authstate"
	"github.com/spec-kit/folio/internal/client/health"
	"github.com/spec-kit/folio/internal/client/session"
	"github.com/spec-kit/folio/internal/config"
	"github.com/spec-kit/folio/internal/observability"
)

// clientApp holds everything a command needs.
type clientApp struct {
	cfg        *config.Config
	logger     *zap.Logger
	monitor    *health.Monitor
	persistent *session.SQLiteStorage
	orch       *authstate.Orchestrator
}

func newClientApp() (*clientApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewCLILogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	policy, err := authstate.ParseFallbackPolicy(cfg.Client.FallbackPolicy)
	if err != nil {
		return nil, err
	}
	demo := authstate.DefaultDemoAccounts()
	if cfg.Client.DemoAccountsFile != "" {
		if demo, err = authstate.LoadDemoAccounts(cfg.Client.DemoAccountsFile); err != nil {
			return nil, err
		}
	}

	persistent, err := session.OpenSQLiteStorage(filepath.Join(cfg.Client.StateDir, "session.db"))
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}

	httpClient := &http.Client{}
	monitor := health.NewMonitor(cfg.Client.APIURL, cfg.Client.ProbeTimeout, httpClient)
	orch := authstate.New(authstate.Options{
		Prober:       monitor,
		API:          api.New(cfg.Client.APIURL, httpClient),
		Sessions:     session.NewStore(persistent, session.NewMemoryStorage()),
		DemoAccounts: demo,
		Fallback:     policy,
		LoginTimeout: cfg.Client.LoginTimeout,
		Logger:       logger,
	})

	return &clientApp{cfg: cfg, logger: logger, monitor: monitor, persistent: persistent, orch: orch}, nil
}

func (a *clientApp) Close() {
	a.orch.Close()
	if err := a.persistent.Close(); err != nil {
		a.logger.Warn("close session storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}
