package cache

import (
	"context"
	"fmt"

	"github.com/muandane/glimpse/internal/config"
	"github.com/muandane/glimpse/internal/storage"
)

// New opens the backend selected by cfg.Cache.Backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return NewMemoryStore(cfg.Cache.MaxBytes), nil
	case "file", "":
		return NewFileStore(cfg.Cache.Directory)
	case "redis":
		return NewRedisStore(ctx, cfg.Cache.RedisURL)
	case "s3":
		client, err := storage.NewMinioClient(&cfg.Storage)
		if err != nil {
			return nil, wrapErr("s3", "open", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket); err != nil {
			return nil, wrapErr("s3", "open", err)
		}
		return NewS3Store(client, cfg.Storage.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
