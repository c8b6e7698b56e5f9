package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"

	"planforge/internal/config"
	"planforge/internal/security"
)

func runSecrets(opts globalOptions, args []string) error {
	if len(args) != 1 || args[0] != "import" {
		fmt.Fprintln(opts.stderr, "usage: planctl secrets import")
		return errUsage
	}

	// Keys set through the environment are imported as well.
	e, err := loadEnv(opts, false)
	if err != nil {
		return err
	}
	if e.keyStore == nil {
		return errors.New("no key store available: set " + masterPasswordEnv + " or enable an OS keychain")
	}

	imported := plaintextSecrets(e.cfg)
	if len(imported) == 0 {
		fmt.Fprintln(opts.stdout, "no plaintext secrets to import")
		return nil
	}

	disk, err := security.StoreSecrets(e.cfg, e.keyStore)
	if err != nil {
		return err
	}
	if err := e.loader.Save(disk); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	for _, name := range imported {
		fmt.Fprintln(opts.stdout, color.GreenString("stored"), name)
	}
	fmt.Fprintf(opts.stdout, "config written to %s\n", e.loader.FilePath())
	return nil
}

// plaintextSecrets names the secrets StoreSecrets would move.
func plaintextSecrets(cfg *config.Config) []string {
	var names []string
	for _, id := range config.KnownProviders {
		if key := cfg.Provider(id).APIKey; key != "" && key != security.KeyringPlaceholder {
			names = append(names, "providers."+id+".api_key")
		}
	}
	if tg := cfg.Channels.Telegram; tg != nil && tg.Token != "" && tg.Token != security.KeyringPlaceholder {
		names = append(names, "channels.telegram.token")
	}
	return names
}
