// Package redisstore caches transliterations in Redis.
package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "drill:translit:"
	DefaultTTL = 30 * 24 * time.Hour
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{rdb: rdb, ttl: DefaultTTL}, nil
}

// SetTTL overrides how long cached entries live.
func (s *Store) SetTTL(ttl time.Duration) { s.ttl = ttl }

func (s *Store) Close() error {
	return s.rdb.Close()
}

// GetTransliteration returns the cached Roman form of text. found is false
// on a cache miss.
func (s *Store) GetTransliteration(ctx context.Context, text string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key(text)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetTransliteration(ctx context.Context, text, roman string) error {
	if err := s.rdb.Set(ctx, key(text), roman, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) DeleteTransliteration(ctx context.Context, text string) error {
	return s.rdb.Del(ctx, key(text)).Err()
}

func key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + hex.EncodeToString(sum[:])
}
