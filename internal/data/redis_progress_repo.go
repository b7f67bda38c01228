package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upswyng/alert-worker/internal/core"
)

const (
	// ProgressChannel is the pub/sub channel every snapshot is broadcast on.
	ProgressChannel = "alert-worker:job-progress"

	defaultProgressTTL = time.Hour
	progressKeyPrefix  = "alert-worker:job:"
)

// RedisProgressOptions configures a RedisProgressRepo.
type RedisProgressOptions struct {
	// TTL bounds how long the latest snapshot is cached after the last update.
	TTL time.Duration
	// Channel overrides ProgressChannel.
	Channel string
}

// RedisProgressRepo caches the latest progress per job and broadcasts every
// update over Redis pub/sub.
type RedisProgressRepo struct {
	client  redis.UniversalClient
	ttl     time.Duration
	channel string
}

var _ core.ProgressPublisher = (*RedisProgressRepo)(nil)

// NewRedisProgressRepo creates a RedisProgressRepo.
func NewRedisProgressRepo(client redis.UniversalClient, opts RedisProgressOptions) *RedisProgressRepo {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	channel := opts.Channel
	if channel == "" {
		channel = ProgressChannel
	}
	return &RedisProgressRepo{client: client, ttl: ttl, channel: channel}
}

// ProgressKey returns the cache key holding jobID's latest snapshot.
func ProgressKey(jobID string) string {
	return progressKeyPrefix + jobID + ":progress"
}

// Publish stores snap and broadcasts it in one pipeline round trip.
func (r *RedisProgressRepo) Publish(ctx context.Context, snap core.ProgressSnapshot) error {
	if snap.JobID == "" {
		return ErrJobIDRequired
	}
	if snap.Percent < 0 || snap.Percent > 100 {
		return fmt.Errorf("progress %d out of range", snap.Percent)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ProgressKey(snap.JobID), body, r.ttl)
		pipe.Publish(ctx, r.channel, body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish progress: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot for jobID, or nil when nothing is cached.
func (r *RedisProgressRepo) Latest(ctx context.Context, jobID string) (*core.ProgressSnapshot, error) {
	if jobID == "" {
		return nil, ErrJobIDRequired
	}
	raw, err := r.client.Get(ctx, ProgressKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get progress: %w", err)
	}
	var snap core.ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &snap, nil
}

// Subscribe streams snapshots published on the progress channel until ctx ends.
// Malformed messages are skipped.
func (r *RedisProgressRepo) Subscribe(ctx context.Context) (<-chan core.ProgressSnapshot, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan core.ProgressSnapshot)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap core.ProgressSnapshot
				if json.Unmarshal([]byte(msg.Payload), &snap) != nil {
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Health checks the health of the Redis connection.
func (r *RedisProgressRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
