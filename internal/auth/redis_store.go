package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore はセッションを Redis に保存します。キーのTTLはセッションの有効期限に合わせます。
type RedisSessionStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisSessionStore は RedisSessionStore を作成します。
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, now: time.Now}
}

// Save はセッションを保存します。既に期限切れのセッションは削除として扱います。
func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	if err := validateSession(s); err != nil {
		return err
	}

	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.rdb.Del(ctx, sessionKey(s.ID)).Err()
		}
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return r.rdb.Set(ctx, sessionKey(s.ID), payload, ttl).Err()
}

// Get はセッションを取得します。
func (r *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

// Delete はセッションを削除します。
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, sessionKey(id)).Err()
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
