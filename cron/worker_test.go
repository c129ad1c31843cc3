package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"demobook/models"
	"demobook/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockFulfillment struct {
	FulfillFunc func(ctx context.Context, id string) (models.BookingOutcome, error)
	GetFunc     func(ctx context.Context, id string) (*models.Booking, error)
	ListFunc    func(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error)
	abandoned   []string
}

func (m *mockFulfillment) Submit(ctx context.Context, req models.BookingRequest) (models.BookingOutcome, error) {
	return models.BookingOutcome{}, errors.New("not used")
}

func (m *mockFulfillment) Fulfill(ctx context.Context, id string) (models.BookingOutcome, error) {
	return m.FulfillFunc(ctx, id)
}

func (m *mockFulfillment) Abandon(ctx context.Context, id string) (models.BookingOutcome, error) {
	m.abandoned = append(m.abandoned, id)
	return models.BookingOutcome{BookingID: id, Status: models.StatusFailed}, nil
}

func (m *mockFulfillment) Get(ctx context.Context, id string) (*models.Booking, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockFulfillment) List(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx, status, limit)
}

type mockResumer struct {
	ids []string
}

func (m *mockResumer) ScheduleResume(_ context.Context, id string, _ time.Duration) error {
	m.ids = append(m.ids, id)
	return nil
}

func resumeTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, _, err := tasks.NewResumeTask(id, 0)
	require.NoError(t, err)
	return task
}

func partial(kind models.ErrorKind, runs int) func(context.Context, string) (*models.Booking, error) {
	return func(_ context.Context, id string) (*models.Booking, error) {
		return &models.Booking{ID: id, Status: models.StatusPartiallyFulfilled, LastError: kind, Runs: runs}, nil
	}
}

func TestHandleResumeTask_Notified(t *testing.T) {
	svc := &mockFulfillment{FulfillFunc: func(context.Context, string) (models.BookingOutcome, error) {
		return models.BookingOutcome{Status: models.StatusNotified}, nil
	}}
	err := HandleResumeTask(svc, 5, zap.NewNop())(context.Background(), resumeTask(t, "b-1"))
	assert.NoError(t, err)
}

func TestHandleResumeTask_StillPartialIsRetried(t *testing.T) {
	svc := &mockFulfillment{
		FulfillFunc: func(context.Context, string) (models.BookingOutcome, error) {
			return models.BookingOutcome{Status: models.StatusPartiallyFulfilled}, nil
		},
		GetFunc: partial(models.KindRelayUnavailable, 2),
	}
	err := HandleResumeTask(svc, 5, zap.NewNop())(context.Background(), resumeTask(t, "b-1"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, svc.abandoned)
}

func TestHandleResumeTask_AbandonsAfterMaxRuns(t *testing.T) {
	svc := &mockFulfillment{
		FulfillFunc: func(context.Context, string) (models.BookingOutcome, error) {
			return models.BookingOutcome{Status: models.StatusPartiallyFulfilled}, nil
		},
		GetFunc: partial(models.KindProviderUnavailable, 5),
	}
	err := HandleResumeTask(svc, 5, zap.NewNop())(context.Background(), resumeTask(t, "b-1"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"b-1"}, svc.abandoned)
}

func TestHandleResumeTask_FatalWaitsForOperator(t *testing.T) {
	svc := &mockFulfillment{
		FulfillFunc: func(context.Context, string) (models.BookingOutcome, error) {
			return models.BookingOutcome{Status: models.StatusPartiallyFulfilled},
				models.NewError(models.KindAuthExpired, "token revoked")
		},
		GetFunc: partial(models.KindAuthExpired, 1),
	}
	err := HandleResumeTask(svc, 5, zap.NewNop())(context.Background(), resumeTask(t, "b-1"))
	assert.NoError(t, err)
	assert.Empty(t, svc.abandoned)
}

func TestHandleResumeTask_MissingBookingSkipsRetry(t *testing.T) {
	svc := &mockFulfillment{FulfillFunc: func(context.Context, string) (models.BookingOutcome, error) {
		return models.BookingOutcome{}, models.NewError(models.KindNotFound, "booking b-1")
	}}
	err := HandleResumeTask(svc, 5, zap.NewNop())(context.Background(), resumeTask(t, "b-1"))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleResumeTask_BadPayload(t *testing.T) {
	task := asynq.NewTask(tasks.TypeResumeBooking, []byte("{"))
	err := HandleResumeTask(&mockFulfillment{}, 5, zap.NewNop())(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleSweepTask(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	fresh := time.Now()
	svc := &mockFulfillment{ListFunc: func(_ context.Context, status models.BookingStatus, _ int) ([]models.Booking, error) {
		switch status {
		case models.StatusScheduled:
			return []models.Booking{{ID: "stuck", UpdatedAt: old}, {ID: "running", UpdatedAt: fresh}}, nil
		case models.StatusPartiallyFulfilled:
			return []models.Booking{
				{ID: "transient", LastError: models.KindProviderUnavailable, UpdatedAt: old},
				{ID: "fatal", LastError: models.KindDeliveryRejected, UpdatedAt: old},
			}, nil
		}
		return nil, nil
	}}
	resumer := &mockResumer{}
	cfg := WorkerConfig{RunLease: 2 * time.Minute, ResumeDelay: 5 * time.Minute, SweepLimit: 10}

	payload, _ := json.Marshal(struct{}{})
	err := HandleSweepTask(svc, resumer, cfg, zap.NewNop())(context.Background(), asynq.NewTask(tasks.TypeSweepBookings, payload))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stuck", "transient"}, resumer.ids)
}
