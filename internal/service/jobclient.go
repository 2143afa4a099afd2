package service

import (
	"time"

	"github.com/hibiken/asynq"

	"ecycle/internal/jobs"
)

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) ScheduleStaleReminder(lifecycle, requestID string, after time.Duration) error {
	return jobs.ScheduleStaleReminder(c.client, lifecycle, requestID, after)
}
