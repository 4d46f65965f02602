package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoints in Redis for multi-process deployments.
// Each session is a string key; a sorted set indexes sessions by the
// time of their last save.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires sessions that have not been saved for ttl. Zero (the
// default) keeps them until deleted.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default: "agentflow:session:".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client. Close closes the client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "agentflow:session:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *backend.Client {
	return s.client
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Save implements Store. The snapshot and its index entry are written in
// one MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, sessionID string, data []byte) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	now := time.Now().UTC()
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{
			Score:  float64(now.UnixMilli()),
			Member: sessionID,
		})
		return nil
	})
	if err != nil {
		return redisErr("save checkpoint", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNotFound
		}
		return nil, redisErr("load checkpoint", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.ZRem(ctx, s.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		return redisErr("delete checkpoint", err)
	}
	return nil
}

// List implements Store. Index entries whose snapshot has expired are
// pruned on the way.
func (s *RedisStore) List(ctx context.Context) ([]Info, error) {
	if s.ttl > 0 {
		cutoff := time.Now().Add(-s.ttl).UnixMilli()
		if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
			return nil, redisErr("prune expired sessions", err)
		}
	}

	entries, err := s.client.ZRangeWithScores(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, redisErr("list sessions", err)
	}

	pipe := s.client.Pipeline()
	sizes := make([]*backend.IntCmd, len(entries))
	for i, z := range entries {
		sizes[i] = pipe.StrLen(ctx, s.key(z.Member.(string)))
	}
	if len(entries) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, redisErr("stat sessions", err)
		}
	}

	infos := make([]Info, 0, len(entries))
	for i, z := range entries {
		size := sizes[i].Val()
		if size == 0 {
			continue
		}
		infos = append(infos, Info{
			SessionID: z.Member.(string),
			UpdatedAt: time.UnixMilli(int64(z.Score)).UTC(),
			Size:      size,
		})
	}
	sortInfos(infos)
	return infos, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisErr maps a closed client onto ErrStoreClosed and wraps everything else.
func redisErr(op string, err error) error {
	if errors.Is(err, backend.ErrClosed) {
		return ErrStoreClosed
	}
	return fmt.Errorf("%s: %w", op, err)
}
