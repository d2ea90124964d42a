package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

type Producer struct {
	client listClient
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

// EnqueueImportJob schedules a results spreadsheet for import.
func (p *Producer) EnqueueImportJob(ctx context.Context, job model.ImportJob) error {
	return p.push(ctx, p.cfg.Redis.ImportQueue, job)
}

// EnqueueReplayJob asks the sync worker to drain one student's queued scores.
func (p *Producer) EnqueueReplayJob(ctx context.Context, job model.ReplayJob) error {
	return p.push(ctx, p.cfg.Redis.ReplayQueue, job)
}

func (p *Producer) push(ctx context.Context, queueName string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := p.client.LPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrQueueUnavailable, err)
	}
	return nil
}
