package app

import (
	"errors"
	"fmt"
	"strings"

	"pairgate/cmd/internal/credstore"
)

// ValidateSecurityConfig enforces the credential policy at startup.
// Misconfiguration fails startup instead of silently storing key material in the clear.
func ValidateSecurityConfig(cfg Config) error {
	switch cfg.CredStore {
	case CredStoreMemory, CredStoreRedis:
	case CredStoreFile:
		if strings.TrimSpace(cfg.CredDir) == "" {
			return errors.New("security policy: PAIRGATE_CRED_STORE=file requires PAIRGATE_CRED_DIR")
		}
	case CredStorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("security policy: PAIRGATE_CRED_STORE=postgres requires PAIRGATE_DATABASE_URL")
		}
	default:
		return fmt.Errorf("security policy: unknown PAIRGATE_CRED_STORE %q", cfg.CredStore)
	}

	if strings.TrimSpace(cfg.CredSealKey) == "" {
		if cfg.RequireSealed {
			return errors.New("security policy: PAIRGATE_REQUIRE_SEALED_CREDS=true but PAIRGATE_CRED_SEAL_KEY is missing")
		}
		return nil
	}

	if _, err := credstore.ParseSealKey(cfg.CredSealKey); err != nil {
		if errors.Is(err, credstore.ErrSealKeyInvalid) {
			return errors.New("security policy: PAIRGATE_CRED_SEAL_KEY must be 64 hex characters")
		}
		return err
	}
	return nil
}
