package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccessToken  = "accessToken"
	fieldRefreshToken = "refreshToken"
	fieldUser         = "user"
	fieldWorkspaceID  = "workspaceId"
)

// RedisStore keeps one browser session in a single Redis hash.
//
// Layout: <prefix><sid> -> {accessToken, refreshToken, user (JSON), workspaceId}.
// Every write slides the key TTL. Clear is a single DEL, so tokens, user
// and workspace selection disappear together.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, ttl: ttl}
}

func (s *RedisStore) Credentials(ctx context.Context) (Credentials, error) {
	vals, err := s.rdb.HMGet(ctx, s.key, fieldAccessToken, fieldRefreshToken).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("session: redis read tokens: %w", err)
	}
	return Credentials{AccessToken: asString(vals[0]), RefreshToken: asString(vals[1])}, nil
}

func (s *RedisStore) SetTokens(ctx context.Context, c Credentials) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if !c.Valid() {
			p.HDel(ctx, s.key, fieldAccessToken, fieldRefreshToken)
			return nil
		}
		p.HSet(ctx, s.key, fieldAccessToken, c.AccessToken, fieldRefreshToken, c.RefreshToken)
		s.touch(ctx, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis write tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) User(ctx context.Context) (*Identity, error) {
	raw, err := s.rdb.HGet(ctx, s.key, fieldUser).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis read user: %w", err)
	}
	var u Identity
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("session: decode user: %w", err)
	}
	return &u, nil
}

func (s *RedisStore) SetUser(ctx context.Context, u Identity) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key, fieldUser, string(b))
		s.touch(ctx, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis write user: %w", err)
	}
	return nil
}

func (s *RedisStore) WorkspaceID(ctx context.Context) (string, error) {
	v, err := s.rdb.HGet(ctx, s.key, fieldWorkspaceID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: redis read workspace: %w", err)
	}
	return v, nil
}

func (s *RedisStore) SetWorkspaceID(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if id == "" {
			p.HDel(ctx, s.key, fieldWorkspaceID)
			return nil
		}
		p.HSet(ctx, s.key, fieldWorkspaceID, id)
		s.touch(ctx, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis write workspace: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("session: redis clear: %w", err)
	}
	return nil
}

func (s *RedisStore) touch(ctx context.Context, p redis.Pipeliner) {
	if s.ttl > 0 {
		p.Expire(ctx, s.key, s.ttl)
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// RedisBackend opens RedisStores sharing one client.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(rdb *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) Open(sessionID string) (Store, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	return NewRedisStore(b.rdb, b.prefix+sessionID, b.ttl), nil
}
