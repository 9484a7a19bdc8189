package app

import (
	"context"
	"fmt"

	"pairgate/cmd/internal/credstore"

	"github.com/jackc/pgx/v5/pgxpool"
)

// redisTTLFactor bounds how long orphaned credential hashes survive a crash.
const redisTTLFactor = 3

// newCredentialProvider builds the configured credential backend, sealed when a key is set.
// The DB pool, when used, stays owned by the App.
func newCredentialProvider(ctx context.Context, cfg Config, log Logger, pool *pgxpool.Pool) (credstore.Provider, error) {
	var (
		inner credstore.Provider
		err   error
	)

	switch cfg.CredStore {
	case CredStoreMemory, "":
		inner = credstore.NewMemoryProvider()

	case CredStoreFile:
		inner, err = credstore.NewFileProvider(cfg.CredDir)
		if err != nil {
			return nil, err
		}

	case CredStorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("%w: postgres backend needs a database pool", credstore.ErrConfig)
		}
		pg, err := credstore.NewPostgresProvider(pool, credstore.WithSchema(cfg.CredSchema))
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		inner = pg

	case CredStoreRedis:
		client, err := credstore.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		rp, err := credstore.NewRedisProvider(client, cfg.LinkWindow*redisTTLFactor)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		inner = rp

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", credstore.ErrConfig, cfg.CredStore)
	}

	log.Info("credstore.ready", "backend", cfg.CredStore, "sealed", cfg.CredSealKey != "")

	if cfg.CredSealKey == "" {
		return inner, nil
	}
	key, err := credstore.ParseSealKey(cfg.CredSealKey)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return credstore.NewSealed(inner, key)
}
