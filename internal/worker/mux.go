package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"navigator/internal/logger"
)

type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

// NewMux returns a task mux that logs how long each task ran.
func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.timing)
	return m
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

func (m *Mux) timing(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, task)
		ev := m.log.Info()
		if err != nil {
			ev = m.log.Error().Err(err)
		}
		ev.Str("type", task.Type()).Dur("took", time.Since(start)).Msg("task finished")
		return err
	})
}

// Server builds the asynq server that runs navigation tasks.
func Server(opt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	if concurrency < 1 {
		concurrency = 1
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
	})
}
