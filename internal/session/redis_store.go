// Package session stores refresh tokens and the short-lived role cache in
// Redis. Only token hashes are used as keys; raw refresh tokens never reach
// the store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cadence/api/internal/store"
)

var ErrSessionNotFound = errors.New("session not found or expired")

type tokenData struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedisStore struct {
	client       *redis.Client
	tokenPrefix  string
	rolePrefix   string
	roleCacheTTL time.Duration
}

func NewRedisStore(redisURL string, roleCacheTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, roleCacheTTL), nil
}

func NewRedisStoreWithClient(client *redis.Client, roleCacheTTL time.Duration) *RedisStore {
	if roleCacheTTL <= 0 {
		roleCacheTTL = 5 * time.Minute
	}
	return &RedisStore{
		client:       client,
		tokenPrefix:  "refresh:",
		rolePrefix:   "role:",
		roleCacheTTL: roleCacheTTL,
	}
}

func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	data := tokenData{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		CreatedAt:   time.Now(),
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if err := s.client.Set(ctx, s.tokenPrefix+tokenHash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	payload, err := s.client.Get(ctx, s.tokenPrefix+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return store.User{}, ErrSessionNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup refresh session: %w", err)
	}

	var data tokenData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return store.User{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if data.Role == "" {
		data.Role = "staff"
	}
	return store.User{
		ID:          data.UserID,
		Email:       data.Email,
		DisplayName: data.DisplayName,
		Role:        data.Role,
	}, nil
}

func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.tokenPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// CacheRole stores a resolved role so later sessions can skip the lookup
// race entirely.
func (s *RedisStore) CacheRole(ctx context.Context, userID, role string) error {
	if err := s.client.Set(ctx, s.rolePrefix+userID, role, s.roleCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache role: %w", err)
	}
	return nil
}

// CachedRole returns the cached role for a user, or "" on a miss.
func (s *RedisStore) CachedRole(ctx context.Context, userID string) (string, error) {
	role, err := s.client.Get(ctx, s.rolePrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cached role: %w", err)
	}
	return role, nil
}

func (s *RedisStore) InvalidateRole(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.rolePrefix+userID).Err(); err != nil {
		return fmt.Errorf("invalidate role: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
