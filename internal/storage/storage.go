package storage

import (
	"fmt"

	"inboxsync/internal/config"
	"inboxsync/internal/kv"
	"inboxsync/internal/redis"
)

// Open returns the kv.Store selected by cfg.Storage.Driver.
func Open(cfg *config.Config) (kv.Store, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return kv.NewMemory(), nil
	case "redis":
		return redis.New(cfg.Redis.Addr)
	case "postgres":
		return NewPostgres(cfg.Storage.DSN)
	case "sqlite":
		return NewSQLite(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
