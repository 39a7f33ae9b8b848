package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"navigator/internal/core/nav"
	"navigator/internal/logger"
)

// Store is the slice of the redis service jobs need.
type Store interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	Publish(ctx context.Context, channel, payload string) error
}

type JobService struct {
	store Store
	log   *logger.Logger
}

func NewJobService(store Store) *JobService {
	return &JobService{store: store, log: logger.New("Jobs")}
}

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := s.store.CacheGet(ctx, key(jobID), &job); err != nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return &job, nil
}

func (s *JobService) save(ctx context.Context, jobID string, update func(*Job)) error {
	var job Job
	_ = s.store.CacheGet(ctx, key(jobID), &job)
	now := time.Now().UTC()
	if job.JobID == "" {
		job.JobID = jobID
		job.Type = TypeNavigate
		job.CreatedAt = now
	}
	update(&job)
	job.UpdatedAt = now
	if err := s.store.CacheSet(ctx, key(jobID), job, ttl(job.Status)); err != nil {
		return err
	}
	// Listeners on the job channel re-read the record.
	_ = s.store.Publish(ctx, key(jobID), "updated")
	return nil
}

func (s *JobService) InitPending(ctx context.Context, jobID string, goal nav.Goal) error {
	return s.save(ctx, jobID, func(j *Job) {
		j.Status = StatusPending
		j.Goal = &goal
	})
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string) error {
	return s.save(ctx, jobID, func(j *Job) { j.Status = StatusProcessing })
}

// Complete stores the run result. A failed navigation is a failed job.
func (s *JobService) Complete(ctx context.Context, jobID string, res *nav.Result) error {
	return s.save(ctx, jobID, func(j *Job) {
		j.Result = res
		j.Status = StatusCompleted
		if !res.Succeeded() {
			j.Status = StatusFailed
		}
	})
}

// PublishJobTrace publishes a structured trace event on the job's channel.
func (s *JobService) PublishJobTrace(ctx context.Context, jobID string, event interface{}) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trace event: %w", err)
	}
	if err := s.store.Publish(ctx, key(jobID), "trace:"+string(b)); err != nil {
		s.log.LogDebugf("failed to publish trace for job %s: %v", jobID, err)
		return err
	}
	return nil
}

func key(id string) string { return "job:" + id }

func ttl(s Status) time.Duration {
	if s.Terminal() {
		return time.Hour
	}
	return 10 * time.Minute
}
