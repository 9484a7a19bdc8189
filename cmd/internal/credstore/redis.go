package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDefaultPrefix = "pairgate:creds:"

// RedisProvider stores each namespace as one Redis hash.
// Hashes carry a TTL so an orphaned namespace (process crash before Destroy) ages out.
type RedisProvider struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProvider constructs a Redis-backed Provider. ttl <= 0 disables expiry.
func NewRedisProvider(client *redis.Client, ttl time.Duration) (*RedisProvider, error) {
	if client == nil {
		return nil, errors.New("credstore: nil redis client")
	}
	return &RedisProvider{client: client, prefix: redisDefaultPrefix, ttl: ttl}, nil
}

// NewRedisClient dials Redis and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("credstore: empty redis addr: %w", ErrConfig)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Close closes the underlying client.
func (p *RedisProvider) Close() error { return p.client.Close() }

// Open returns a namespace handle. The hash is created lazily on the first Put.
func (p *RedisProvider) Open(ctx context.Context, sessionID string) (Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validNamespaceID(sessionID) {
		return nil, fmt.Errorf("credstore.Open: %w", ErrInvalidKey)
	}
	return &redisNamespace{
		id:     sessionID,
		key:    p.prefix + sessionID,
		client: p.client,
		ttl:    p.ttl,
	}, nil
}

type redisNamespace struct {
	id     string
	key    string
	client *redis.Client
	ttl    time.Duration

	mu        sync.Mutex
	destroyed bool
}

func (n *redisNamespace) ID() string { return n.id }

func (n *redisNamespace) Put(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var (
		sets []any
		dels []string
	)
	for _, e := range entries {
		if !validKey(e.Key) {
			return fmt.Errorf("credstore.Put %q: %w", e.Key, ErrInvalidKey)
		}
		if e.Value == nil {
			dels = append(dels, e.Key)
			continue
		}
		sets = append(sets, e.Key, e.Value)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrDestroyed
	}

	_, err := n.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sets) > 0 {
			pipe.HSet(ctx, n.key, sets...)
		}
		if len(dels) > 0 {
			pipe.HDel(ctx, n.key, dels...)
		}
		if n.ttl > 0 {
			pipe.Expire(ctx, n.key, n.ttl)
		}
		return nil
	})
	return err
}

func (n *redisNamespace) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := n.client.HGet(ctx, n.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (n *redisNamespace) ReadBundle(ctx context.Context) ([]byte, error) {
	b, err := n.Get(ctx, BundleKey)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotReady
	}
	return b, err
}

func (n *redisNamespace) Destroy(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return nil
	}
	if err := n.client.Del(ctx, n.key).Err(); err != nil {
		return err
	}
	n.destroyed = true
	return nil
}
