package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"planforge/internal/config"
	"planforge/internal/journal"
	"planforge/internal/logging"
	"planforge/internal/security"
)

const (
	masterPasswordEnv = "PLANFORGE_MASTER_PASSWORD"
	journalFile       = "journal.db"
)

// env is the loaded configuration plus the services every command shares.
type env struct {
	loader   *config.Loader
	cfg      *config.Config
	logger   *slog.Logger
	keyStore *security.KeyStore
}

// loadEnv loads the config. With resolve set, [keyring] placeholders are
// replaced by the stored secrets.
func loadEnv(opts globalOptions, resolve bool) (*env, error) {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: "console", Output: opts.stderr})
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader(opts.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	e := &env{loader: loader, cfg: cfg, logger: logger}

	ks, err := openKeyStore(cfg)
	if err != nil {
		logger.Warn("key store unavailable", logging.Err(err))
		return e, nil
	}
	e.keyStore = ks
	if !resolve {
		return e, nil
	}
	if err := security.ResolveSecrets(cfg, ks); err != nil {
		logger.Warn("some secrets could not be resolved", logging.Err(err))
	}
	return e, nil
}

func openKeyStore(cfg *config.Config) (*security.KeyStore, error) {
	dir := cfg.Security.VaultDir
	if dir == "" {
		d, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return security.NewKeyStore(dir, os.Getenv(masterPasswordEnv))
}

// openJournal returns nil when the journal is disabled.
func (e *env) openJournal() (journal.Journal, error) {
	if !e.cfg.Journal.Enabled {
		return nil, nil
	}
	path := e.cfg.Journal.Path
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, journalFile)
	}
	j, err := journal.NewSQLiteJournal(path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return j, nil
}
