package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"demobook/models"

	"go.uber.org/zap"
)

// Fulfill runs the remaining stages of a stored booking, resuming after the
// last stage its progress records. Terminal bookings are returned untouched and
// a booking leased by another run is reported as that run left it.
func (s *DefaultFulfillmentService) Fulfill(ctx context.Context, bookingID string) (models.BookingOutcome, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		err := models.NewError(models.KindInvalidArgument, "booking id is required")
		return failedOutcome("", "", err), err
	}

	b, err := s.load(ctx, bookingID)
	if err != nil {
		return failedOutcome(bookingID, "", err), err
	}
	if b.Status.Terminal() {
		return terminalOutcome(b), nil
	}

	claimed, err := s.claim(ctx, b)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return s.byProxy(ctx, bookingID)
		}
		return failedOutcome(bookingID, "", err), err
	}
	s.Logger.Info("Fulfillment run started",
		zap.String("bookingId", bookingID),
		zap.String("runId", claimed.RunID),
		zap.String("status", string(claimed.Status)),
		zap.Int("runs", claimed.Runs))
	return s.advance(ctx, claimed)
}

func (s *DefaultFulfillmentService) load(ctx context.Context, bookingID string) (*models.Booking, error) {
	var b *models.Booking
	err := s.attempt(ctx, bookingID, "", func(ctx context.Context) error {
		var err error
		b, err = s.Store.Get(ctx, bookingID)
		return err
	})
	return b, err
}

// claim takes the run lease on b. Losing the race yields ErrConflict.
func (s *DefaultFulfillmentService) claim(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	now := s.now().UTC()
	claimed := b.Clone()
	claimed.RunID = s.newID()
	claimed.LeaseExpiresAt = now.Add(s.Policy.RunLease)
	claimed.Runs++
	claimed.UpdatedAt = now
	if err := s.commit(ctx, claimed, b.Status, claimed.RunID); err != nil {
		return nil, err
	}
	return claimed, nil
}

// advance executes every stage b's progress does not cover yet. b is the
// last committed state and carries this run's lease.
func (s *DefaultFulfillmentService) advance(ctx context.Context, b *models.Booking) (models.BookingOutcome, error) {
	runID := b.RunID
	for _, stage := range models.Stages {
		if b.Progress.Covers(stage) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.stop(ctx, b, stage, &models.StageError{Kind: models.KindCanceled, Stage: stage, Message: "run canceled", Err: err})
		}

		next := b.Clone()
		if err := s.perform(ctx, stage, next); err != nil {
			return s.stop(ctx, b, stage, err)
		}

		now := s.now().UTC()
		next.Status = models.StatusAfter(stage)
		next.Progress = next.Status
		next.LastError = ""
		delete(next.Notes, stage)
		next.UpdatedAt = now
		next.LeaseExpiresAt = now.Add(s.Policy.RunLease)
		if stage == models.StageNotify {
			next.RunID = ""
			next.LeaseExpiresAt = time.Time{}
		}
		if !models.CanTransition(b.Status, next.Status, b.Progress) {
			err := models.NewError(models.KindInternal, "illegal transition %s -> %s", b.Status, next.Status)
			return s.stop(ctx, b, stage, err)
		}

		// The side effect has happened; recording it must outlive the caller.
		cctx, cancel := s.detached(ctx)
		err := s.commit(cctx, next, b.Status, runID)
		cancel()
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				return s.byProxy(ctx, b.ID)
			}
			return s.stop(ctx, b, models.StagePersist, err)
		}
		s.Logger.Info("Stage completed",
			zap.String("bookingId", b.ID),
			zap.String("stage", string(stage)),
			zap.String("status", string(next.Status)))
		b = next
	}

	if b.RunID != "" {
		s.release(ctx, b)
		b.RunID = ""
	}
	out := models.OutcomeOf(b)
	if b.Status == models.StatusNotified {
		s.publish(ctx, out)
	}
	return out, nil
}

// perform runs the side effect of stage and records its result on b.
// Link and calendar results already present on b are reused.
func (s *DefaultFulfillmentService) perform(ctx context.Context, stage models.Stage, b *models.Booking) error {
	switch stage {
	case models.StageLink:
		if b.MeetingLink != nil {
			return nil
		}
		link, err := s.Links.Generate(b.ID)
		if err != nil {
			return classify(stage, err)
		}
		b.MeetingLink = &link

	case models.StageSchedule:
		if b.CalendarEvent != nil {
			return nil
		}
		if b.MeetingLink == nil {
			return classify(stage, models.NewError(models.KindInternal, "booking %s has no meeting link", b.ID))
		}
		var ref models.CalendarEventRef
		err := s.attempt(ctx, b.ID, stage, func(ctx context.Context) error {
			var err error
			ref, err = s.Calendar.Schedule(ctx, b, *b.MeetingLink)
			return err
		})
		if err != nil {
			return err
		}
		b.CalendarEvent = &ref

	case models.StagePersist:
		// The commit that follows every stage is the persist stage here.
		if b.MeetingLink == nil || b.CalendarEvent == nil {
			return classify(stage, models.NewError(models.KindInternal, "booking %s is incomplete", b.ID))
		}

	case models.StageNotify:
		return s.attempt(ctx, b.ID, stage, func(ctx context.Context) error {
			return s.Notifier.Notify(ctx, b)
		})
	}
	return nil
}

// commit writes next under {prev, runID}. A conflicting retry whose earlier
// attempt already landed counts as success.
func (s *DefaultFulfillmentService) commit(ctx context.Context, next *models.Booking, prev models.BookingStatus, runID string) error {
	cond := models.Precondition{Status: prev, RunID: runID}
	err := s.attempt(ctx, next.ID, models.StagePersist, func(ctx context.Context) error {
		return s.Store.Commit(ctx, next, cond)
	})
	if err == nil || !errors.Is(err, models.ErrConflict) {
		return err
	}
	stored, gerr := s.Store.Get(ctx, next.ID)
	if gerr == nil && stored.Status == next.Status && stored.Progress == next.Progress &&
		stored.RunID == next.RunID && stored.Runs == next.Runs {
		return nil
	}
	return err
}

// stop records why the run ended early and releases the lease. Exhausted
// transient failures leave the booking PartiallyFulfilled with a resume
// scheduled; fatal ones are returned to the caller.
func (s *DefaultFulfillmentService) stop(ctx context.Context, b *models.Booking, stage models.Stage, cause error) (models.BookingOutcome, error) {
	kind := models.KindOf(cause)
	logger := s.Logger.With(
		zap.String("bookingId", b.ID),
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)))

	if kind == models.KindCanceled {
		s.release(ctx, b)
		logger.Warn("Fulfillment run canceled", zap.String("status", string(b.Status)))
		out := models.OutcomeOf(b)
		out.Error = outcomeError(stage, cause)
		return out, cause
	}

	next := b.Clone()
	next.LastError = kind
	next.SetNote(stage, fmt.Sprintf("%s failed: %s", stage, kind))
	next.RunID = ""
	next.LeaseExpiresAt = time.Time{}
	next.UpdatedAt = s.now().UTC()
	next.Status = models.StatusPartiallyFulfilled
	if kind == models.KindInvalidSchedule && next.CalendarEvent == nil {
		// Nothing outside the store has happened yet.
		next.Status = models.StatusFailed
	}

	cctx, cancel := s.detached(ctx)
	defer cancel()
	if err := s.commit(cctx, next, b.Status, b.RunID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return s.byProxy(ctx, b.ID)
		}
		logger.Error("Failed to record stage failure", zap.Error(err), zap.NamedError("cause", cause))
		s.scheduleResume(ctx, b.ID)
		out := models.OutcomeOf(b)
		out.Error = outcomeError(stage, cause)
		return out, err
	}

	out := models.OutcomeOf(next)
	out.Error = outcomeError(stage, cause)
	s.publish(ctx, out)

	if models.IsRetryable(kind) {
		logger.Warn("Stage retries exhausted, booking partially fulfilled", zap.Error(cause))
		s.scheduleResume(ctx, b.ID)
		return out, nil
	}
	logger.Error("Stage failed", zap.String("status", string(next.Status)), zap.Error(cause))
	return out, cause
}

// detached returns a context that ignores cancellation of ctx but still
// bounds a full commit attempt cycle.
func (s *DefaultFulfillmentService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.Policy.commitBudget())
}

// release drops this run's lease without touching status, even after ctx is canceled.
func (s *DefaultFulfillmentService) release(ctx context.Context, b *models.Booking) {
	timeout := s.Policy.StageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	next := b.Clone()
	next.RunID = ""
	next.LeaseExpiresAt = time.Time{}
	next.UpdatedAt = s.now().UTC()
	if err := s.Store.Commit(rctx, next, models.Precondition{Status: b.Status, RunID: b.RunID}); err != nil {
		s.Logger.Warn("Failed to release run lease", zap.String("bookingId", b.ID), zap.Error(err))
	}
}

func (s *DefaultFulfillmentService) byProxy(ctx context.Context, bookingID string) (models.BookingOutcome, error) {
	stored, err := s.load(context.WithoutCancel(ctx), bookingID)
	if err != nil {
		return failedOutcome(bookingID, "", err), err
	}
	s.Logger.Info("Booking is being fulfilled by another run",
		zap.String("bookingId", bookingID),
		zap.String("status", string(stored.Status)))
	return models.OutcomeOf(stored), nil
}

func (s *DefaultFulfillmentService) scheduleResume(ctx context.Context, bookingID string) {
	if s.Resumer == nil {
		return
	}
	if err := s.Resumer.ScheduleResume(context.WithoutCancel(ctx), bookingID, s.Policy.ResumeDelay); err != nil {
		s.Logger.Warn("Failed to schedule resume", zap.String("bookingId", bookingID), zap.Error(err))
	}
}

func terminalOutcome(b *models.Booking) models.BookingOutcome {
	out := models.OutcomeOf(b)
	if b.Status == models.StatusFailed && b.LastError != "" {
		out.Error = &models.OutcomeError{Kind: b.LastError, Detail: fmt.Sprintf("booking %s is Failed", b.ID)}
	}
	return out
}
