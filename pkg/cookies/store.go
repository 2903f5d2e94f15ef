package cookies

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "kemono-dl"
	keyringKey     = "session_cookie"
)

// ErrSecretNotFound is returned when no cookie secret has been stored
var ErrSecretNotFound = errors.New("cookie secret not found")

// SecretStore persists a single cookie secret
type SecretStore interface {
	Set(secret string) error
	Get() (string, error)
	Delete() error
}

// KeyringStore keeps the cookie secret in the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store, verifying the keyring is
// usable on this system.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Set stores the cookie secret
func (k *KeyringStore) Set(secret string) error {
	if secret == "" {
		return errors.New("empty secret")
	}
	if err := keyring.Set(keyringService, keyringKey, secret); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Get retrieves the cookie secret
func (k *KeyringStore) Get() (string, error) {
	secret, err := keyring.Get(keyringService, keyringKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read from keyring: %w", err)
	}
	return secret, nil
}

// Delete removes the cookie secret
func (k *KeyringStore) Delete() error {
	err := keyring.Delete(keyringService, keyringKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSecretNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// OpenStore returns the keyring store when available, falling back to the
// encrypted file store in the application directory.
func OpenStore() (SecretStore, error) {
	if store, err := NewKeyringStore(); err == nil {
		return store, nil
	}

	appDir, err := AppDir()
	if err != nil {
		return nil, err
	}
	return NewEncryptedFileStore(appDir)
}
