package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eid-tools/dds-hashcode/internal/signing"
)

const (
	redisKeyPrefix = "dds-hashcode:session:"
	redisIndexKey  = "dds-hashcode:sessions:updated"
)

// Redis stores each session as a JSON value that expires after ttl.
//
// The ttl should be longer than the session max age used by the housekeeping sweep, otherwise a session value
// can expire before the sweep has removed its upload directory.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to REDIS_ADDR and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedis returns a store that keeps each session as a JSON value expiring after ttl
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func sessionKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String()
}

// Get decodes the stored session or returns signing.ErrSessionNotFound
func (r *Redis) Get(ctx context.Context, id uuid.UUID) (*signing.SigningSession, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, signing.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get signing session: %w", err)
	}

	var sess signing.SigningSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode signing session %s: %w", id, err)
	}
	return &sess, nil
}

// Save writes the session value and its position in the update index in one transaction
func (r *Redis) Save(ctx context.Context, sess *signing.SigningSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode signing session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), data, r.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(sess.UpdatedAt.UnixMilli()),
			Member: sess.ID.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save signing session: %w", err)
	}
	return nil
}

// Delete removes the session value and its index entry
func (r *Redis) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.ZRem(ctx, redisIndexKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete signing session: %w", err)
	}
	return nil
}

// ListUpdatedBefore returns the indexed sessions last updated before cutoff. Index entries whose value
// already expired are dropped from the index.
func (r *Redis) ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*signing.SigningSession, error) {
	ids, err := r.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list signing sessions: %w", err)
	}

	sessions := make([]*signing.SigningSession, 0, len(ids))
	for _, member := range ids {
		id, err := uuid.Parse(member)
		if err != nil {
			r.client.ZRem(ctx, redisIndexKey, member)
			continue
		}
		sess, err := r.Get(ctx, id)
		if errors.Is(err, signing.ErrSessionNotFound) {
			r.client.ZRem(ctx, redisIndexKey, member)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
