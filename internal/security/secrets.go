package security

import (
	"errors"
	"fmt"

	"planforge/internal/config"
)

// KeyringPlaceholder marks a config secret that lives in the KeyStore.
const KeyringPlaceholder = "[keyring]"

const secretNameTelegramToken = "telegram_token"

func providerSecretName(id string) string {
	return id + "_api_key"
}

// ResolveSecrets replaces [keyring] placeholders in cfg with the stored
// values. Secrets that cannot be read are cleared so the provider reports
// itself unconfigured; the returned error lists them.
func ResolveSecrets(cfg *config.Config, ks *KeyStore) error {
	var errs []error

	for id, p := range cfg.Providers {
		if p.APIKey != KeyringPlaceholder {
			continue
		}
		val, err := ks.Get(providerSecretName(id))
		if err != nil {
			errs = append(errs, fmt.Errorf("providers.%s.api_key: %w", id, err))
			val = ""
		}
		p.APIKey = val
		cfg.Providers[id] = p
	}

	if tg := cfg.Channels.Telegram; tg != nil && tg.Token == KeyringPlaceholder {
		val, err := ks.Get(secretNameTelegramToken)
		if err != nil {
			errs = append(errs, fmt.Errorf("channels.telegram.token: %w", err))
			val = ""
		}
		tg.Token = val
	}

	return errors.Join(errs...)
}

// StoreSecrets moves plaintext secrets of cfg into ks and returns a copy of
// cfg fit for disk, with every stored secret replaced by the placeholder.
// cfg itself keeps the real values.
func StoreSecrets(cfg *config.Config, ks *KeyStore) (*config.Config, error) {
	disk := *cfg
	disk.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))

	for id, p := range cfg.Providers {
		if p.APIKey != "" && p.APIKey != KeyringPlaceholder {
			if err := ks.Set(providerSecretName(id), p.APIKey); err != nil {
				return nil, fmt.Errorf("store %s key: %w", id, err)
			}
			p.APIKey = KeyringPlaceholder
		}
		disk.Providers[id] = p
	}

	if tg := cfg.Channels.Telegram; tg != nil && tg.Token != "" && tg.Token != KeyringPlaceholder {
		if err := ks.Set(secretNameTelegramToken, tg.Token); err != nil {
			return nil, fmt.Errorf("store telegram token: %w", err)
		}
		tgCopy := *tg
		tgCopy.Token = KeyringPlaceholder
		disk.Channels.Telegram = &tgCopy
	}

	return &disk, nil
}
