package fulfillment

import (
	"context"
	"errors"
	"time"

	"demobook/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultFulfillmentService implements FulfillmentService. It is the only
// component that knows the order of the stages and the only one that changes
// a booking's status.
type DefaultFulfillmentService struct {
	Links    LinkGenerator
	Calendar CalendarScheduler
	Store    BookingStore
	Notifier Notifier
	Resumer  Resumer
	Events   EventPublisher
	Policy   Policy
	Logger   *zap.Logger

	validate *validator.Validate
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
}

// NewFulfillmentService wires the pipeline. Resumer and Events may be nil.
func NewFulfillmentService(
	links LinkGenerator,
	cal CalendarScheduler,
	store BookingStore,
	notifier Notifier,
	resumer Resumer,
	events EventPublisher,
	policy Policy,
	logger *zap.Logger,
) *DefaultFulfillmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &DefaultFulfillmentService{
		Links:    links,
		Calendar: cal,
		Store:    store,
		Notifier: notifier,
		Resumer:  resumer,
		Events:   events,
		Policy:   policy,
		Logger:   logger,
		validate: newValidator(),
		now:      time.Now,
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Submit validates req, records the Pending booking and runs the pipeline.
// A caller-assigned id that already exists resumes that booking instead.
func (s *DefaultFulfillmentService) Submit(ctx context.Context, req models.BookingRequest) (models.BookingOutcome, error) {
	req, startsAt, err := s.validateRequest(req)
	if err != nil {
		return failedOutcome(req.BookingID, "", err), err
	}

	id := req.BookingID
	if id == "" {
		id = s.newID()
	}
	now := s.now().UTC()
	b := &models.Booking{
		ID:        id,
		Name:      req.Name,
		Email:     req.Email,
		Date:      req.Date,
		Time:      req.Time,
		Topic:     req.Topic,
		TimeZone:  s.Policy.Location.String(),
		StartsAt:  startsAt,
		Status:    models.StatusPending,
		Progress:  models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.attempt(ctx, b.ID, models.StagePersist, func(ctx context.Context) error {
		return s.Store.Create(ctx, b)
	})
	switch {
	case err == nil:
		s.Logger.Info("Booking accepted", zap.String("bookingId", b.ID), zap.Time("startsAt", startsAt))
	case errors.Is(err, models.ErrConflict):
		s.Logger.Info("Booking already exists, resuming", zap.String("bookingId", b.ID))
	default:
		s.Logger.Error("Failed to record booking", zap.String("bookingId", b.ID), zap.Error(err))
		return failedOutcome(b.ID, models.StagePersist, err), err
	}
	return s.Fulfill(ctx, b.ID)
}

// Abandon gives up on a PartiallyFulfilled booking by marking it Failed.
func (s *DefaultFulfillmentService) Abandon(ctx context.Context, bookingID string) (models.BookingOutcome, error) {
	ok, err := s.Store.CompareAndSwapStatus(ctx, bookingID, models.StatusPartiallyFulfilled, models.StatusFailed)
	if err != nil {
		return failedOutcome(bookingID, "", err), err
	}
	b, err := s.Store.Get(ctx, bookingID)
	if err != nil {
		return failedOutcome(bookingID, "", err), err
	}
	out := models.OutcomeOf(b)
	if !ok {
		err := models.NewError(models.KindConflict, "booking %s is %s and cannot be abandoned", bookingID, b.Status)
		out.Error = outcomeError("", err)
		return out, err
	}
	s.Logger.Warn("Booking abandoned", zap.String("bookingId", bookingID), zap.String("progress", string(b.Progress)))
	s.publish(ctx, out)
	return out, nil
}

func (s *DefaultFulfillmentService) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.Store.Get(ctx, bookingID)
}

func (s *DefaultFulfillmentService) List(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	if !status.Valid() {
		return nil, models.NewError(models.KindInvalidArgument, "unknown status %q", status)
	}
	return s.Store.ListByStatus(ctx, status, limit)
}

func (s *DefaultFulfillmentService) publish(ctx context.Context, out models.BookingOutcome) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(context.WithoutCancel(ctx), out); err != nil {
		s.Logger.Warn("Failed to publish booking event", zap.String("bookingId", out.BookingID), zap.Error(err))
	}
}

func outcomeError(stage models.Stage, err error) *models.OutcomeError {
	if err == nil {
		return nil
	}
	var se *models.StageError
	if errors.As(err, &se) && se.Stage != "" {
		stage = se.Stage
	}
	return &models.OutcomeError{Kind: models.KindOf(err), Stage: stage, Detail: err.Error()}
}

func failedOutcome(bookingID string, stage models.Stage, err error) models.BookingOutcome {
	return models.BookingOutcome{BookingID: bookingID, Error: outcomeError(stage, err)}
}
