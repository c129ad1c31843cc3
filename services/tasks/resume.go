package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeResumeBooking = "booking:resume"
	TypeSweepBookings = "booking:sweep"

	QueueDefault = "default"
)

type ResumePayload struct {
	BookingID string `json:"bookingId"`
}

// ResumeTaskID keeps at most one pending resume per booking.
func ResumeTaskID(bookingID string) string {
	return TypeResumeBooking + ":" + bookingID
}

func NewResumeTask(bookingID string, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ResumePayload{BookingID: bookingID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeResumeBooking, b)
	opts := []asynq.Option{
		asynq.TaskID(ResumeTaskID(bookingID)),
		asynq.ProcessIn(delay),
		asynq.Queue(QueueDefault),
	}
	return task, opts, nil
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweepBookings, nil)
}

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqResumer defers resumption runs onto the asynq queue.
type AsynqResumer struct {
	client Enqueuer
	logger *zap.Logger
}

func NewAsynqResumer(client Enqueuer, logger *zap.Logger) *AsynqResumer {
	return &AsynqResumer{client: client, logger: logger}
}

// ScheduleResume enqueues a resume after delay. A resume already queued for
// the booking satisfies the request.
func (r *AsynqResumer) ScheduleResume(ctx context.Context, bookingID string, delay time.Duration) error {
	task, opts, err := NewResumeTask(bookingID, delay)
	if err != nil {
		return fmt.Errorf("build resume task: %w", err)
	}
	info, err := r.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		r.logger.Debug("Resume already queued", zap.String("bookingId", bookingID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue resume for %s: %w", bookingID, err)
	}
	r.logger.Info("Resume scheduled",
		zap.String("bookingId", bookingID),
		zap.String("taskId", info.ID),
		zap.Time("processAt", info.NextProcessAt))
	return nil
}
