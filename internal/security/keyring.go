package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "planforge"
	vaultFile      = "vault.enc"
	saltFile       = "vault.salt"
)

// ErrSecretNotFound is returned when neither the keychain nor the vault
// holds the requested secret.
var ErrSecretNotFound = errors.New("secret not found")

// KeyStore manages secure storage of API keys.
// Primary: OS keychain. Fallback: AES-GCM vault file keyed by a master password.
type KeyStore struct {
	mu        sync.Mutex
	cipher    *Cipher // nil when no master password was given
	vaultPath string
}

// NewKeyStore creates a key store rooted at dir. masterPassword unlocks the
// vault; leave it empty to rely on the OS keychain only.
func NewKeyStore(dir, masterPassword string) (*KeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	ks := &KeyStore{vaultPath: filepath.Join(dir, vaultFile)}
	if masterPassword == "" {
		return ks, nil
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, fmt.Errorf("vault salt: %w", err)
	}
	c, err := NewCipher(DeriveKey(masterPassword, salt))
	if err != nil {
		return nil, err
	}
	ks.cipher = c
	return ks, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltLen {
		return salt, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	salt, err = GenerateSalt()
	if err != nil {
		return nil, err
	}
	return salt, os.WriteFile(path, salt, 0o600)
}

// Set stores a secret (tries keyring first, falls back to encrypted file).
func (ks *KeyStore) Set(name, value string) error {
	if err := keyring.Set(keyringService, name, value); err == nil {
		return nil
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	vault, err := ks.loadVault()
	if err != nil {
		return err
	}
	vault[name] = value
	return ks.saveVault(vault)
}

// Get retrieves a secret.
func (ks *KeyStore) Get(name string) (string, error) {
	if val, err := keyring.Get(keyringService, name); err == nil {
		return val, nil
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	vault, err := ks.loadVault()
	if err != nil {
		return "", err
	}
	val, ok := vault[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return val, nil
}

// Delete removes a secret from both stores.
func (ks *KeyStore) Delete(name string) error {
	_ = keyring.Delete(keyringService, name)

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.cipher == nil {
		return nil
	}
	vault, err := ks.loadVault()
	if err != nil {
		return nil
	}
	if _, ok := vault[name]; !ok {
		return nil
	}
	delete(vault, name)
	return ks.saveVault(vault)
}

// MaskKey returns a masked version of an API key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

func (ks *KeyStore) loadVault() (map[string]string, error) {
	data, err := os.ReadFile(ks.vaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	if ks.cipher == nil {
		return nil, fmt.Errorf("vault is locked: no master password set")
	}

	plaintext, err := ks.cipher.Open(string(data))
	if err != nil {
		return nil, fmt.Errorf("decrypt vault: %w", err)
	}

	var vault map[string]string
	if err := json.Unmarshal(plaintext, &vault); err != nil {
		return nil, fmt.Errorf("parse vault: %w", err)
	}
	if vault == nil {
		vault = make(map[string]string)
	}
	return vault, nil
}

func (ks *KeyStore) saveVault(vault map[string]string) error {
	if ks.cipher == nil {
		return fmt.Errorf("no OS keychain available and vault is locked: set a master password")
	}

	data, err := json.Marshal(vault)
	if err != nil {
		return err
	}
	sealed, err := ks.cipher.Seal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(ks.vaultPath, []byte(sealed), 0o600)
}
