package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis, with optimistic concurrency via WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // Session TTL (0 keeps sessions indefinitely)
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// sessionKey generates Redis key for a session
func (r *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("intake:session:%s", sessionID)
}

// Get loads a session from Redis
func (r *RedisStore) Get(ctx context.Context, sessionID string) (*models.DialogueSession, error) {
	return r.load(ctx, r.client, r.sessionKey(sessionID))
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter, key string) (*models.DialogueSession, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from Redis: %w", err)
	}

	var session models.DialogueSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}
	if session.CollectedData == nil {
		session.CollectedData = make(map[string]string)
	}

	return &session, nil
}

// Put saves a session if nobody else has written it since expectedVersion.
func (r *RedisStore) Put(ctx context.Context, session *models.DialogueSession, expectedVersion int64) (int64, error) {
	key := r.sessionKey(session.SessionID)
	newVersion := expectedVersion + 1

	txf := func(tx *redis.Tx) error {
		var current int64
		stored, err := r.load(ctx, tx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			current = 0
		case err != nil:
			return err
		default:
			current = stored.Version
		}
		if current != expectedVersion {
			return ErrConflict
		}

		toSave := *session
		toSave.Version = newVersion
		data, err := json.Marshal(&toSave)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrConflict) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save session to Redis: %w", err)
	}

	session.Version = newVersion
	return newVersion, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping verifies the Redis connection is alive
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client exposes the underlying connection so other Redis-backed components can share it.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}
