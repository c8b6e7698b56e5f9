package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"planforge/internal/channel"
	"planforge/internal/config"
	"planforge/internal/eventbus"
	"planforge/internal/journal"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/observability"
	"planforge/internal/planner"
	"planforge/internal/security"
	"planforge/internal/server"
)

// masterPasswordEnv unlocks the encrypted vault used when no OS keychain is available.
const masterPasswordEnv = "PLANFORGE_MASTER_PASSWORD"

const journalFile = "journal.db"

// App holds the long-lived components of the planforge service.
type App struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	bus        *eventbus.Bus
	keyStore   *security.KeyStore
	journal    journal.Journal
	registry   *llm.Registry
	planner    *planner.Service
	chanMgr    *channel.Manager
	server     *server.Server
}

// NewApp creates an App that reads its config from configPath, or from the
// default locations when configPath is empty.
func NewApp(configPath string) *App {
	return &App{
		configPath: configPath,
		bus:        eventbus.New(),
	}
}

// startup loads config and builds every component. Nothing listens yet.
func (a *App) startup(ctx context.Context) error {
	cfg, err := config.NewLoader(a.configPath).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	a.logger = logger

	a.resolveSecrets()

	if cfg.Journal.Enabled {
		if err := a.openJournal(); err != nil {
			return err
		}
	}
	observability.Subscribe(a.bus)

	orch, err := llm.NewOrchestratorFromConfig(cfg, a.bus, logger)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	a.registry = orch.Registry()
	if len(a.registry.Available()) == 0 {
		logger.Warn("no LLM providers configured, plan requests will fail until an API key is set")
	}

	a.planner = planner.NewService(orch, planner.Config{
		Sanitizer: security.NewSanitizer(cfg.Security.PIIFiltering),
		Bus:       a.bus,
		Logger:    logger,
	})

	a.initChannels()

	a.server = server.New(server.Deps{
		Planner:  a.planner,
		Registry: a.registry,
		Journal:  a.journal,
		Config:   cfg,
	}, server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	a.bus.Subscribe(eventbus.TopicError, func(e eventbus.Event) {
		if err, ok := e.Payload.(error); ok {
			logger.Debug("error event", logging.Err(err))
		}
	})
	a.bus.Subscribe(eventbus.TopicStatusChange, func(e eventbus.Event) {
		logger.Info("status changed", "status", e.Payload)
	})

	logger.InfoContext(ctx, "planforge initialized",
		"providers", a.registry.Available(),
		"fallback", cfg.LLM.FallbackEnabled,
		"journal", a.journal != nil,
	)
	return nil
}

// resolveSecrets loads [keyring] placeholders from the key store. Failures
// leave the affected provider unconfigured.
func (a *App) resolveSecrets() {
	dir := a.cfg.Security.VaultDir
	if dir == "" {
		d, err := config.DataDir()
		if err != nil {
			a.logger.Warn("no data directory, keyring secrets unavailable", logging.Err(err))
			return
		}
		dir = d
	}

	ks, err := security.NewKeyStore(dir, os.Getenv(masterPasswordEnv))
	if err != nil {
		a.logger.Warn("key store unavailable", logging.Err(err))
		return
	}
	a.keyStore = ks

	if err := security.ResolveSecrets(a.cfg, ks); err != nil {
		a.logger.Warn("some secrets could not be resolved", logging.Err(err))
	}
}

func (a *App) openJournal() error {
	path := a.cfg.Journal.Path
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		path = filepath.Join(dir, journalFile)
	}

	j, err := journal.NewSQLiteJournal(path)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	a.journal = j
	journal.Subscribe(a.bus, j, a.logger)
	return nil
}

func (a *App) initChannels() {
	a.chanMgr = channel.NewManager(a.logger)

	if tg := a.cfg.Channels.Telegram; tg != nil && tg.Token != "" {
		a.chanMgr.Register(channel.NewTelegramChannel(channel.TelegramConfig{
			Token:      tg.Token,
			Authorizer: security.NewAuthorizerFromIDs(tg.AllowedIDs),
			Logger:     a.logger,
		}))
	}
	if a.cfg.Channels.Console {
		a.chanMgr.Register(channel.NewConsoleChannel())
	}
}

// run starts the channels and serves HTTP until ctx is canceled.
func (a *App) run(ctx context.Context) error {
	if err := a.chanMgr.StartAll(ctx); err != nil {
		return err
	}
	planner.NewListener(a.planner, a.chanMgr, a.bus, a.logger).Start(ctx)

	a.bus.Publish(eventbus.TopicStatusChange, "running")
	return a.server.ListenAndServe(ctx)
}

// shutdown releases everything startup acquired. Safe after a failed startup.
func (a *App) shutdown(ctx context.Context) {
	a.bus.Publish(eventbus.TopicStatusChange, "stopping")
	if a.chanMgr != nil {
		a.chanMgr.StopAll(ctx)
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil && a.logger != nil {
			a.logger.Error("close journal", logging.Err(err))
		}
	}
}
