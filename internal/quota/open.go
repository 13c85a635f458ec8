package quota

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options configures Open.
type Options struct {
	Backend     string
	Path        string // file and sqlite
	DatabaseURL string // postgres
	Redis       *redis.Client
	RedisKey    string
}

// Open builds the configured ledger backend.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	switch opts.Backend {
	case "", BackendFile:
		return OpenFile(opts.Path)
	case BackendSQLite:
		path := opts.Path
		if path == "" {
			path = "data/quota.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		return OpenSQL(ctx, DialectSQLite, path)
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres quota backend needs DATABASE_URL")
		}
		return OpenSQL(ctx, DialectPostgres, opts.DatabaseURL)
	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis quota backend needs a redis client")
		}
		return NewRedis(opts.Redis, opts.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown quota backend %q", opts.Backend)
	}
}
