package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/redis/go-redis/v9"
)

const recordIndexKey = "intake:records"

// RedisSink stores one record per session under a SETNX-guarded key and keeps
// a record ID to session index for lookups.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (r *RedisSink) recordKey(sessionID string) string {
	return fmt.Sprintf("intake:record:%s", sessionID)
}

func (r *RedisSink) Insert(ctx context.Context, record *models.IntakeRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	key := r.recordKey(record.SessionID)
	created, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	if !created {
		existing, err := r.load(ctx, key)
		if err != nil {
			return "", err
		}
		// Repairs an index entry lost when an earlier insert could not be rolled back.
		if err := r.index(ctx, existing); err != nil {
			return "", err
		}
		return existing.ID, ErrRecordExists
	}

	if err := r.index(ctx, record); err != nil {
		// Without the index the record is unreachable, so the insert is undone
		// and the next attempt starts from scratch.
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			return "", fmt.Errorf("%w (rollback also failed: %v)", err, delErr)
		}
		return "", err
	}

	return record.ID, nil
}

// index maps the record ID to its session. HSET is idempotent.
func (r *RedisSink) index(ctx context.Context, record *models.IntakeRecord) error {
	if err := r.client.HSet(ctx, recordIndexKey, record.ID, record.SessionID).Err(); err != nil {
		return fmt.Errorf("failed to index record %s: %w", record.ID, err)
	}
	return nil
}

func (r *RedisSink) Get(ctx context.Context, recordID string) (*models.IntakeRecord, error) {
	sessionID, err := r.client.HGet(ctx, recordIndexKey, recordID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up record %s: %w", recordID, err)
	}
	return r.load(ctx, r.recordKey(sessionID))
}

func (r *RedisSink) load(ctx context.Context, key string) (*models.IntakeRecord, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var record models.IntakeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &record, nil
}
