package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lenswire/lenswire/internal/config"
)

// Redis is the hosted queue. Ready messages live in a LIST. A fetch moves
// the message atomically onto a staging LIST before recording the delivery
// in a HASH keyed by receipt with its visibility deadline in a ZSET, so the
// message is reachable by the reclaim scan at every point. Unacked
// deliveries return to the ready list when their deadline passes.
type Redis struct {
	client     *redis.Client
	name       string
	visibility time.Duration
	logger     *slog.Logger
}

// NewRedis connects to the configured Redis instance.
func NewRedis(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Redis{
		client:     client,
		name:       cfg.Name,
		visibility: cfg.VisibilityTimeout,
		logger:     logger,
	}, nil
}

func (q *Redis) readyKey() string    { return q.name + ":ready" }
func (q *Redis) stagingKey() string  { return q.name + ":staging" }
func (q *Redis) inflightKey() string { return q.name + ":inflight" }
func (q *Redis) deadlineKey() string { return q.name + ":deadlines" }

func (q *Redis) Send(ctx context.Context, body string) error {
	if err := q.client.LPush(ctx, q.readyKey(), body).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (q *Redis) FetchBatch(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if err := q.reclaimExpired(ctx); err != nil {
		q.logger.Warn("reclaim of expired deliveries failed", "error", err)
	}

	msgs := make([]Message, 0, max)
	for len(msgs) < max {
		var body string
		var err error

		// Ready -> staging is a single Redis command: a process death after
		// it leaves the message on the staging list, where the next reclaim
		// pass finds it. Block only for the first message of a batch.
		if len(msgs) == 0 && wait > 0 {
			body, err = q.client.BLMove(ctx, q.readyKey(), q.stagingKey(), "RIGHT", "LEFT", wait).Result()
		} else {
			body, err = q.client.LMove(ctx, q.readyKey(), q.stagingKey(), "RIGHT", "LEFT").Result()
		}
		if err == redis.Nil {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}

		receipt := uuid.NewString()
		deadline := float64(time.Now().Add(q.visibility).UnixMilli())

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.inflightKey(), receipt, body)
		pipe.ZAdd(ctx, q.deadlineKey(), redis.Z{Score: deadline, Member: receipt})
		pipe.LRem(ctx, q.stagingKey(), 1, body)
		if _, err := pipe.Exec(ctx); err != nil {
			// The message is still on the staging list; the next reclaim
			// pass requeues it.
			return msgs, fmt.Errorf("track delivery: %w", err)
		}

		msgs = append(msgs, Message{Body: body, Receipt: receipt})
	}

	return msgs, nil
}

func (q *Redis) Ack(ctx context.Context, receipt string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.inflightKey(), receipt)
	pipe.ZRem(ctx, q.deadlineKey(), receipt)
	_, err := pipe.Exec(ctx)
	return err
}

// reclaimExpired requeues deliveries stranded on the staging list by a
// fetch that died mid-flight, then deliveries whose visibility deadline has
// passed. A staged message belonging to a concurrently fetching consumer
// may be requeued and delivered twice, which the at-least-once contract
// permits.
func (q *Redis) reclaimExpired(ctx context.Context) error {
	for {
		_, err := q.client.LMove(ctx, q.stagingKey(), q.readyKey(), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return err
		}
		q.logger.Warn("requeued delivery stranded mid-fetch")
	}

	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	expired, err := q.client.ZRangeByScore(ctx, q.deadlineKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, receipt := range expired {
		body, err := q.client.HGet(ctx, q.inflightKey(), receipt).Result()
		if err == redis.Nil {
			q.client.ZRem(ctx, q.deadlineKey(), receipt)
			continue
		}
		if err != nil {
			return err
		}

		pipe := q.client.TxPipeline()
		pipe.RPush(ctx, q.readyKey(), body)
		pipe.HDel(ctx, q.inflightKey(), receipt)
		pipe.ZRem(ctx, q.deadlineKey(), receipt)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}

		q.logger.Warn("redelivering message after visibility timeout", "receipt", receipt)
	}

	return nil
}

// Len reports ready, staged, and in-flight messages.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, err
	}
	staged, err := q.client.LLen(ctx, q.stagingKey()).Result()
	if err != nil {
		return 0, err
	}
	inflight, err := q.client.HLen(ctx, q.inflightKey()).Result()
	if err != nil {
		return 0, err
	}
	return ready + staged + inflight, nil
}
