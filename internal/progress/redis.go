package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// RedisPublisher mirrors snapshots into Redis so that other replicas can
// answer progress polls and subscribers can follow a job live.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration, log *zap.SugaredLogger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if prefix == "" {
		prefix = "subtrans"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisPublisher{client: client, prefix: prefix, ttl: ttl, log: log}, nil
}

func (r *RedisPublisher) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, jobID)
}

func (r *RedisPublisher) channel(jobID string) string {
	return fmt.Sprintf("%s:job:%s:progress", r.prefix, jobID)
}

// Observe is an Observer; pass it to Store.Subscribe. Failures are logged and
// never block the job.
func (r *RedisPublisher) Observe(p Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.Publish(ctx, p); err != nil {
		r.log.Warnw("failed to publish progress", "job_id", p.JobID, "error", err)
	}
}

// Publish stores the snapshot in the job hash and announces it on the job channel.
func (r *RedisPublisher) Publish(ctx context.Context, p Progress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	key := r.jobKey(p.JobID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, hashFields(p, payload))
		pipe.Expire(ctx, key, r.ttl)
		pipe.Publish(ctx, r.channel(p.JobID), payload)
		return nil
	})
	return err
}

// Fetch reads a snapshot written by any replica.
func (r *RedisPublisher) Fetch(ctx context.Context, jobID string) (Progress, bool, error) {
	raw, err := r.client.HGet(ctx, r.jobKey(jobID), "snapshot").Result()
	if errors.Is(err, redis.Nil) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, err
	}

	var p Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Progress{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return p, true, nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}

// hashFields flattens the headline fields next to the full JSON snapshot so the
// hash is readable from redis-cli.
func hashFields(p Progress, payload []byte) map[string]interface{} {
	return map[string]interface{}{
		"status":            string(p.Status),
		"progress":          strconv.Itoa(p.Progress),
		"processed_entries": strconv.Itoa(p.ProcessedEntries),
		"total_entries":     strconv.Itoa(p.TotalEntries),
		"message":           p.Message,
		"updated_at":        p.UpdatedAt.Format(time.RFC3339),
		"snapshot":          string(payload),
	}
}
