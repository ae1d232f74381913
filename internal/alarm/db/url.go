package db

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/Raimguzhinov/alarmd/pkg/postgres"
	"github.com/go-redis/redis/v8"
)

// NewFromURL picks the backend by URL scheme: memory://, postgres://, redis://.
func NewFromURL(ctx context.Context, storageURL string, l *logger.Logger, pgOpts ...postgres.Option) (Store, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing storage URL: %s", err.Error())
	}

	switch u.Scheme {
	case "memory":
		return NewMemory(), nil
	case "postgres", "postgresql":
		pg, err := postgres.New(ctx, l, storageURL, pgOpts...)
		if err != nil {
			return nil, fmt.Errorf("db - NewFromURL - postgres.New: %w", err)
		}
		if err = Migrate(ctx, pg); err != nil {
			pg.Close()
			return nil, fmt.Errorf("db - NewFromURL - Migrate: %w", err)
		}
		return NewPostgres(pg, l), nil
	case "redis", "rediss":
		// prefix is ours, go-redis rejects unknown options
		q := u.Query()
		prefix := q.Get("prefix")
		q.Del("prefix")
		u.RawQuery = q.Encode()

		opts, err := redis.ParseURL(u.String())
		if err != nil {
			return nil, fmt.Errorf("db - NewFromURL - redis.ParseURL: %w", err)
		}
		client := redis.NewClient(opts)
		if err = client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("db - NewFromURL - redis.Ping: %w", err)
		}
		return NewRedis(client, prefix, l), nil
	default:
		return nil, fmt.Errorf("no storage provider found for %s:// URL", u.Scheme)
	}
}
