// internal/creds/creds.go
package creds

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	// keyringService is the service name under which the password is stored
	// in the OS keychain.
	keyringService = "igpilot"

	// envPassword is the environment variable consulted before the keychain.
	envPassword = "IGPILOT_PASSWORD"
)

// ErrPasswordNotFound means no password could be resolved from any source.
var ErrPasswordNotFound = errors.New("no password found in environment or OS keyring")

// ResolvePassword finds the account password without ever putting it in a
// config file or on the command line. Order: a .env file in the working
// directory (loaded into the environment), the IGPILOT_PASSWORD variable,
// then the OS keyring entry for the username.
func ResolvePassword(username string, logger *zap.Logger) (string, error) {
	if username == "" {
		return "", errors.New("account username is not configured")
	}

	// Best effort; a missing .env file is the normal case.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded credentials from .env file")
	}

	if pw := os.Getenv(envPassword); pw != "" {
		return pw, nil
	}

	pw, err := keyring.Get(keyringService, username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w (set %s or run: keyring entry %q/%q)",
				ErrPasswordNotFound, envPassword, keyringService, username)
		}
		return "", fmt.Errorf("failed to read OS keyring: %w", err)
	}
	return pw, nil
}

// StorePassword writes the password for username into the OS keyring.
func StorePassword(username, password string) error {
	if username == "" {
		return errors.New("account username is not configured")
	}
	if password == "" {
		return errors.New("refusing to store an empty password")
	}
	if err := keyring.Set(keyringService, username, password); err != nil {
		return fmt.Errorf("failed to write OS keyring: %w", err)
	}
	return nil
}
