package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"demobook/models"
	"demobook/services/fulfillment"
	"demobook/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// WorkerConfig tunes the resume worker.
type WorkerConfig struct {
	Concurrency   int
	MaxRuns       int
	ResumeDelay   time.Duration
	RunLease      time.Duration
	SweepInterval time.Duration
	SweepLimit    int
}

// ResumeWorker drives deferred fulfillment runs off the asynq queue and
// periodically sweeps the store for bookings nobody is going to resume.
type ResumeWorker struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

func NewResumeWorker(redisOpts asynq.RedisClientOpt, svc fulfillment.FulfillmentService, resumer fulfillment.Resumer, cfg WorkerConfig, logger *zap.Logger) *ResumeWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = 100
	}
	resumeDelay := cfg.ResumeDelay

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				tasks.QueueDefault: 1,
			},
			RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
				return resumeDelay
			},
			Logger: logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeResumeBooking, HandleResumeTask(svc, cfg.MaxRuns, logger))
	mux.HandleFunc(tasks.TypeSweepBookings, HandleSweepTask(svc, resumer, cfg, logger))

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.SweepInterval), tasks.NewSweepTask(), asynq.Queue(tasks.QueueDefault)); err != nil {
		logger.Error("Failed to register sweep", zap.Error(err))
	}

	return &ResumeWorker{srv: srv, scheduler: scheduler, mux: mux, logger: logger}
}

// Run blocks until the process receives SIGINT or SIGTERM. Starting the
// server is retried with a growing delay.
func (w *ResumeWorker) Run() error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("start sweep scheduler: %w", err)
	}
	defer w.scheduler.Shutdown()

	w.logger.Info("Starting resume worker")
	const maxAttempts = 5
	var err error
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = w.srv.Run(w.mux); err == nil {
			return nil
		}
		w.logger.Warn("Failed to start worker",
			zap.Int("attempt", attempts),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err))
		time.Sleep(time.Duration(attempts*2) * time.Second)
	}
	return fmt.Errorf("resume worker: %w", err)
}

// Shutdown drains in-flight resume runs. Run returns once it completes.
func (w *ResumeWorker) Shutdown() {
	w.srv.Shutdown()
}

// HandleResumeTask runs Fulfill for the booking in the payload. A booking still
// partially fulfilled after a transient failure is retried by asynq; one that
// has used up maxRuns is marked Failed.
func HandleResumeTask(svc fulfillment.FulfillmentService, maxRuns int, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.ResumePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.BookingID == "" {
			logger.Error("Invalid resume payload", zap.ByteString("payload", task.Payload()), zap.Error(err))
			return fmt.Errorf("invalid resume payload: %w", asynq.SkipRetry)
		}
		log := logger.With(zap.String("bookingId", p.BookingID))

		out, err := svc.Fulfill(ctx, p.BookingID)
		if err != nil {
			kind := models.KindOf(err)
			switch {
			case kind == models.KindNotFound || kind == models.KindInvalidArgument:
				log.Warn("Dropping resume", zap.Error(err))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			case models.IsRetryable(kind) || kind == models.KindCanceled:
				return err
			}
			log.Error("Resume stopped on a fatal error", zap.Error(err))
		}
		if out.Status != models.StatusPartiallyFulfilled {
			log.Info("Resume finished", zap.String("status", string(out.Status)))
			return nil
		}

		b, err := svc.Get(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if maxRuns > 0 && b.Runs >= maxRuns {
			if _, err := svc.Abandon(ctx, p.BookingID); err != nil {
				log.Error("Failed to abandon booking", zap.Error(err))
				return err
			}
			log.Warn("Booking failed after exhausting runs", zap.Int("runs", b.Runs))
			return nil
		}
		if models.IsRetryable(b.LastError) {
			return fmt.Errorf("booking %s still partially fulfilled after run %d", p.BookingID, b.Runs)
		}
		return nil
	}
}

// sweptStatuses are the states a booking should never linger in.
var sweptStatuses = []models.BookingStatus{
	models.StatusPending,
	models.StatusLinkCreated,
	models.StatusScheduled,
	models.StatusPersisted,
	models.StatusPartiallyFulfilled,
}

// HandleSweepTask requeues bookings left behind by crashed runs or lost resume
// tasks. Only bookings idle for longer than their lease and resume delay count.
func HandleSweepTask(svc fulfillment.FulfillmentService, resumer fulfillment.Resumer, cfg WorkerConfig, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		cutoff := time.Now().Add(-(cfg.RunLease + cfg.ResumeDelay))
		requeued := 0
		for _, status := range sweptStatuses {
			bookings, err := svc.List(ctx, status, cfg.SweepLimit)
			if err != nil {
				return err
			}
			for _, b := range bookings {
				if b.UpdatedAt.After(cutoff) {
					continue
				}
				if status == models.StatusPartiallyFulfilled && !models.IsRetryable(b.LastError) {
					continue
				}
				if err := resumer.ScheduleResume(ctx, b.ID, 0); err != nil {
					logger.Warn("Sweep failed to requeue booking", zap.String("bookingId", b.ID), zap.Error(err))
					continue
				}
				requeued++
			}
		}
		if requeued > 0 {
			logger.Info("Sweep requeued bookings", zap.Int("count", requeued))
		}
		return nil
	}
}
