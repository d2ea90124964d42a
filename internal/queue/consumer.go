package queue

import (
	"context"
	goerrors "errors"
	"time"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	defaultPollTimeout = 5 * time.Second
	// Pause after a Redis failure so an outage does not spin the loop.
	errorBackoff = time.Second
)

// MessageHandler processes one job payload. A returned error moves the
// payload to the queue's DLQ.
type MessageHandler func(ctx context.Context, data []byte) error

// Consumer pops jobs with BRPOP. Delivery is at most once: a payload is gone
// from the source list before its handler runs.
type Consumer struct {
	client  listClient
	cfg     *config.Config
	timeout time.Duration
	backoff time.Duration
	log     zerolog.Logger
}

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client:  redisClient.Client(),
		cfg:     cfg,
		timeout: defaultPollTimeout,
		backoff: errorBackoff,
		log:     logger.Get().With().Str("component", "job_consumer").Logger(),
	}
}

func (c *Consumer) ConsumeImportQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.ImportQueue, handler)
}

func (c *Consumer) ConsumeReplayQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.ReplayQueue, handler)
}

// consume runs until ctx is done.
func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	log := c.log.With().Str("queue", queueName).Logger()
	log.Info().Msg("Consuming job queue")

	for ctx.Err() == nil {
		result, err := c.client.BRPop(ctx, c.timeout, queueName).Result()
		switch {
		case goerrors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to pop job")
			c.pause(ctx)
			continue
		case len(result) < 2:
			continue
		}

		c.handle(ctx, log, queueName, result[1], handler)
	}

	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, log zerolog.Logger, queueName, message string, handler MessageHandler) {
	err := handler(ctx, []byte(message))
	if err == nil {
		return
	}

	dlq := queueName + c.cfg.Redis.DLQSuffix
	log.Error().Err(err).Str("dlq", dlq).Msg("Job failed, moving to DLQ")

	// The job's context may already be cancelled; the DLQ write must still land.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	if dlqErr := c.client.LPush(pushCtx, dlq, message).Err(); dlqErr != nil {
		log.Error().Err(dlqErr).Str("dlq", dlq).Str("payload", message).Msg("Failed to move job to DLQ")
	}
}

func (c *Consumer) pause(ctx context.Context) {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
