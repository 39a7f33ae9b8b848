package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestMuxRoutesByType(t *testing.T) {
	m := NewMux()
	var got []string
	m.HandleFunc("navigate:task", func(_ context.Context, task *asynq.Task) error {
		got = append(got, string(task.Payload()))
		return nil
	})
	m.HandleFunc("broken:task", func(context.Context, *asynq.Task) error {
		return errors.New("boom")
	})

	assert.NoError(t, m.Mux().ProcessTask(context.Background(), asynq.NewTask("navigate:task", []byte("p1"))))
	assert.EqualError(t, m.Mux().ProcessTask(context.Background(), asynq.NewTask("broken:task", nil)), "boom")
	assert.Equal(t, []string{"p1"}, got)
}
