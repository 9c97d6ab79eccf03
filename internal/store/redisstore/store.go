package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/secondme-labs/match-backend/internal/auth"
)

const sessionPrefix = "sm:sess:"

// Store keeps login sessions in redis: session id -> user row id, with the
// cookie's TTL. Redis expiry is the single source of session lifetime.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, userID uint64, ttl time.Duration) error {
	return s.rdb.Set(ctx, sessionPrefix+sessionID, strconv.FormatUint(userID, 10), ttl).Err()
}

func (s *Store) UserID(ctx context.Context, sessionID string) (uint64, error) {
	val, err := s.rdb.Get(ctx, sessionPrefix+sessionID).Result()
	if err == redis.Nil {
		return 0, auth.ErrNoSession
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(val, 10, 64)
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionPrefix+sessionID).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }
