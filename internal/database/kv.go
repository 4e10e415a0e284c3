package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/liamwears/reeldeck/internal/config"
)

// ErrKeyNotFound is returned by Get when the key has never been written or was deleted
var ErrKeyNotFound = errors.New("local state: key not found")

// Stable keys of the local profile
const (
	KeyFavorites     = "favorites"
	KeyWatchlist     = "watchlist"
	KeySearchHistory = "searchHistory"
	KeyUser          = "user"
	KeyLoggedIn      = "loggedIn"
	KeyThemeMode     = "themeMode"
)

// Change describes a write observed on the local state
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
	Origin  uuid.UUID
}

// KV is the local profile storage. Writes are durable when they return.
// Every handle has its own origin; Watch only reports writes made through
// other handles, in this process or another one attached to the same storage.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context) (<-chan Change, error)
	Origin() uuid.UUID
	// Health reports whether the backing store is reachable
	Health(ctx context.Context) error
	Close() error
}

// Open returns the KV backend selected by the storage driver
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (KV, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return NewMemoryKV(), nil

	case config.DriverSQLite:
		return OpenSQLiteKV(cfg.Storage.Path, SQLiteOptions{
			PollInterval: cfg.Storage.PollInterval,
			Logger:       logger,
		})

	case config.DriverPostgres:
		db, err := New(ctx, Config{URL: cfg.Database.URL}, logger)
		if err != nil {
			return nil, err
		}
		if err := NewMigrator(db.Pool, logger).Up(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate local state schema: %w", err)
		}
		return NewPostgresKV(db, logger), nil

	case config.DriverRedis:
		client, err := NewRedisClient(ctx, RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewRedisKV(client, cfg.Redis.KeyPrefix, logger), nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
