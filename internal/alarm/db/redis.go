package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "alarmd:"

type redisStore struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

func NewRedis(client *redis.Client, prefix string, l *logger.Logger) Store {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{
		client: client,
		prefix: prefix,
		logger: l,
	}
}

func (r *redisStore) recordKey(ns Namespace, key string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, ns, key)
}

// indexKey holds the set of keys written to a namespace.
func (r *redisStore) indexKey(ns Namespace) string {
	return fmt.Sprintf("%s%s", r.prefix, ns)
}

func (r *redisStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.recordKey(ns, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("redis.Get", logger.Err(err))
		return nil, fmt.Errorf("redis - Get: %w", err)
	}
	return val, nil
}

func (r *redisStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(ns, key), value, 0)
		pipe.SAdd(ctx, r.indexKey(ns), key)
		return nil
	})
	if err != nil {
		r.logger.Error("redis.Put", logger.Err(err))
		return fmt.Errorf("redis - Put: %w", err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, ns Namespace, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordKey(ns, key))
		pipe.SRem(ctx, r.indexKey(ns), key)
		return nil
	})
	if err != nil {
		r.logger.Error("redis.Delete", logger.Err(err))
		return fmt.Errorf("redis - Delete: %w", err)
	}
	return nil
}

func (r *redisStore) List(ctx context.Context, ns Namespace) ([][]byte, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey(ns)).Result()
	if err != nil {
		r.logger.Error("redis.List", logger.Err(err))
		return nil, fmt.Errorf("redis - List - SMembers: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	recordKeys := make([]string, len(keys))
	for i, k := range keys {
		recordKeys[i] = r.recordKey(ns, k)
	}

	vals, err := r.client.MGet(ctx, recordKeys...).Result()
	if err != nil {
		r.logger.Error("redis.List", logger.Err(err))
		return nil, fmt.Errorf("redis - List - MGet: %w", err)
	}

	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// deleted between SMembers and MGet
			continue
		}
		out = append(out, []byte(s))
	}
	return out, nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
