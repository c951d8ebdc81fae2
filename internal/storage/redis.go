package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fanprompt/internal/core"
	"fanprompt/internal/jsonx"
	"fanprompt/internal/logger"
)

const defaultRedisKey = "fanprompt:jobs"

// RedisStore keeps job definitions as JSON entries of a Redis list.
type RedisStore struct {
	rdb *goredis.Client
	key string
	log *logger.Logger
}

// NewRedisStore connects to addr and pings it before returning.
func NewRedisStore(ctx context.Context, addr, key string, log *logger.Logger) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, &core.PersistenceError{Op: "open", Err: fmt.Errorf("missing redis address")}
	}
	if strings.TrimSpace(key) == "" {
		key = defaultRedisKey
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &core.PersistenceError{Op: "open", Err: fmt.Errorf("redis ping: %w", err)}
	}
	return &RedisStore{rdb: rdb, key: key, log: logger.OrNop(log).With("store", "redis", "key", key)}, nil
}

func (s *RedisStore) Create(ctx context.Context, def core.JobDefinition) (string, error) {
	def, err := prepare(def)
	if err != nil {
		return "", err
	}
	raw, err := jsonx.Marshal(def)
	if err != nil {
		return "", &core.PersistenceError{Op: "create", Err: err}
	}
	if err := s.rdb.RPush(ctx, s.key, raw).Err(); err != nil {
		return "", &core.PersistenceError{Op: "create", Err: err}
	}
	s.log.Debug("job stored", "id", def.ID, "job", def.Name)
	return def.ID, nil
}

// List returns definitions in push order.
func (s *RedisStore) List(ctx context.Context) ([]core.JobDefinition, error) {
	items, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, &core.PersistenceError{Op: "list", Err: err}
	}
	out := make([]core.JobDefinition, 0, len(items))
	for i, item := range items {
		var def core.JobDefinition
		if err := jsonx.Unmarshal([]byte(item), &def); err != nil {
			return nil, &core.PersistenceError{Op: "list", Err: fmt.Errorf("decode entry %d: %w", i, err)}
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
