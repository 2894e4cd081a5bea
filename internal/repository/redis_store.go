package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"k12-tutor/internal/domain"
)

const defaultRedisPrefix = "tutor:session:"

// redisAPI is the subset of go-redis commands RedisStore needs.
// *goredis.Client satisfies it.
type redisAPI interface {
	LRange(ctx context.Context, key string, start, stop int64) *goredis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
}

// RedisStore keeps each session as a Redis list of JSON-encoded turns.
// When ttl is set, every append pushes the expiry forward.
type RedisStore struct {
	api    redisAPI
	prefix string
	ttl    time.Duration
}

func NewRedisStore(api redisAPI, prefix string, ttl time.Duration) (*RedisStore, error) {
	if api == nil {
		return nil, errors.New("repository: redis api must not be nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{api: api, prefix: prefix, ttl: ttl}, nil
}

// DialRedis connects and pings so misconfiguration fails at startup.
func DialRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("repository: redis address must not be empty")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("repository: redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// GetOrCreate reads the session list. Redis creates the list on first push,
// so an unknown session is simply empty.
func (s *RedisStore) GetOrCreate(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	turns, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: GetOrCreate: %w", err)
	}
	return turns, nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	turns, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: History: %w", err)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turn domain.ConversationTurn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("repository: Append marshal: %w", err)
	}
	key := s.key(sessionID)
	// RPUSH and EXPIRE go out as one MULTI/EXEC so a turn is never stored
	// without its expiry.
	_, err = s.api.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("repository: Append rpush/expire: %w", err)
	}
	return nil
}

func (s *RedisStore) read(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	vals, err := s.api.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	turns := make([]domain.ConversationTurn, 0, len(vals))
	for i, v := range vals {
		var t domain.ConversationTurn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn %d: %w", i, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
