package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"texttools/internal/tasks"
)

// enqueuer is the part of asynq.Client the job client uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqJobClient is a concrete JobClient that schedules batch:check tasks.
type AsynqJobClient struct {
	client   enqueuer
	maxRetry int
}

// Ensure it implements JobClient
var _ JobClient = (*AsynqJobClient)(nil)

func NewAsynqJobClient(opt asynq.RedisClientOpt) (*AsynqJobClient, error) {
	if opt.Addr == "" {
		return nil, fmt.Errorf("redis address is required for the job client")
	}
	return &AsynqJobClient{client: asynq.NewClient(opt), maxRetry: 3}, nil
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

// EnqueueBatchCheck schedules one status check for jobName after delay.
func (jc *AsynqJobClient) EnqueueBatchCheck(ctx context.Context, kind, jobName string, delay time.Duration) error {
	if jc.client == nil {
		return fmt.Errorf("AsynqJobClient internal client is not initialized")
	}
	payload, err := tasks.EncodeBatchCheck(tasks.BatchCheckPayload{Kind: kind, JobName: jobName})
	if err != nil {
		return fmt.Errorf("encode batch check for %s: %w", jobName, err)
	}
	task := asynq.NewTask(tasks.TypeBatchCheck, payload)
	opts := []asynq.Option{asynq.Queue(tasks.QueueBatch), asynq.MaxRetry(jc.maxRetry)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue batch check for %s: %w", jobName, err)
	}
	log.WithFields(log.Fields{
		"task_id":  info.ID,
		"job_name": jobName,
		"kind":     kind,
		"delay":    delay,
	}).Debug("Enqueued batch check")
	return nil
}
