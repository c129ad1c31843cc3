package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEnqueuer struct {
	EnqueueFunc func(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	tasks       []*asynq.Task
	opts        [][]asynq.Option
}

func (m *mockEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, task)
	m.opts = append(m.opts, opts)
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(task, opts...)
	}
	return &asynq.TaskInfo{ID: "t-1", NextProcessAt: time.Now()}, nil
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) any {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value()
		}
	}
	return nil
}

func TestNewResumeTask(t *testing.T) {
	task, opts, err := NewResumeTask("b-1", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypeResumeBooking, task.Type())

	var p ResumePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "b-1", p.BookingID)

	assert.Equal(t, "booking:resume:b-1", optionValue(opts, asynq.TaskIDOpt))
	assert.Equal(t, 5*time.Minute, optionValue(opts, asynq.ProcessInOpt))
	assert.Equal(t, QueueDefault, optionValue(opts, asynq.QueueOpt))
}

func TestScheduleResume(t *testing.T) {
	m := &mockEnqueuer{}
	r := NewAsynqResumer(m, zap.NewNop())

	require.NoError(t, r.ScheduleResume(context.Background(), "b-1", time.Minute))
	require.Len(t, m.tasks, 1)
	assert.Equal(t, TypeResumeBooking, m.tasks[0].Type())
}

func TestScheduleResume_DuplicateIsFine(t *testing.T) {
	m := &mockEnqueuer{EnqueueFunc: func(*asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
		return nil, asynq.ErrTaskIDConflict
	}}
	assert.NoError(t, NewAsynqResumer(m, zap.NewNop()).ScheduleResume(context.Background(), "b-1", time.Minute))
}

func TestScheduleResume_EnqueueError(t *testing.T) {
	m := &mockEnqueuer{EnqueueFunc: func(*asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
		return nil, errors.New("redis down")
	}}
	err := NewAsynqResumer(m, zap.NewNop()).ScheduleResume(context.Background(), "b-1", time.Minute)
	assert.ErrorContains(t, err, "enqueue resume for b-1")
}
