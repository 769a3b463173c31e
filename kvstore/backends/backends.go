// Package backends opens the kvstore implementation selected by configuration.
package backends

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/kvstore"
	"github.com/jrsteele09/go-tenant-session/kvstore/filestore"
	"github.com/jrsteele09/go-tenant-session/kvstore/memstore"
	"github.com/jrsteele09/go-tenant-session/kvstore/pgstore"
	"github.com/jrsteele09/go-tenant-session/kvstore/redisstore"
	"github.com/jrsteele09/go-tenant-session/kvstore/sqlitestore"
)

type Config interface {
	config.StoreConfig
	GetDataFolder() string
}

func Open(ctx context.Context, c Config) (kvstore.Store, error) {
	switch t := c.GetStoreType(); t {
	case config.MemoryStore:
		return memstore.New(), nil
	case config.FileStore:
		return filestore.New(filepath.Join(c.GetDataFolder(), "session.json"), filestore.WithSecret(c.GetStoreSecret()))
	case config.SQLiteStore:
		return sqlitestore.Open(ctx, filepath.Join(c.GetDataFolder(), "session.sqlite3"))
	case config.RedisStore:
		return redisstore.Open(ctx, c.GetRedisAddr(), c.GetRedisPrefix())
	case config.PostgresStore:
		return pgstore.Open(ctx, c.GetPostgresDSN())
	default:
		return nil, fmt.Errorf("backends.Open: unknown store type %q", t)
	}
}
