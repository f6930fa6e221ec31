package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alderburg/Teste-sub007/internal/models"
)

const keyPrefix = "gestor:session:"

// RedisStore keeps sessions in Redis with the session lifetime as TTL.
// A per-user set indexes sessions for DeleteForUser; ids of expired
// sessions linger there until the user's sessions are deleted.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id string) string { return keyPrefix + id }

func userKey(userID string) string { return keyPrefix + "user:" + userID }

func attemptsKey(id string) string { return keyPrefix + id + ":attempts" }

func (s *RedisStore) Create(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = ulid.Make().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: already expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
	pipe.SAdd(ctx, userKey(sess.UserID), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id), attemptsKey(id))
	pipe.SRem(ctx, userKey(sess.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteForUser(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	keys := []string{userKey(userID)}
	for _, id := range ids {
		keys = append(keys, sessionKey(id), attemptsKey(id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions from redis: %w", err)
	}
	return nil
}

// RecordFailedAttempt keeps the counter in its own key, expiring with the
// session.
func (s *RedisStore) RecordFailedAttempt(ctx context.Context, sess *models.Session) (int, error) {
	exists, err := s.client.Exists(ctx, sessionKey(sess.ID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if exists == 0 {
		return 0, ErrSessionNotFound
	}

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptsKey(sess.ID))
	pipe.ExpireAt(ctx, attemptsKey(sess.ID), sess.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record attempt in redis: %w", err)
	}
	return int(incr.Val()), nil
}

// PurgeExpired is a no-op: Redis expires session keys itself.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
