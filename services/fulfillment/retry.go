package fulfillment

import (
	"context"
	"errors"

	"demobook/models"

	"go.uber.org/zap"
)

// transientKind is the retryable kind a timed-out call of stage counts as.
func transientKind(stage models.Stage) models.ErrorKind {
	if stage == models.StageNotify {
		return models.KindRelayUnavailable
	}
	return models.KindProviderUnavailable
}

// classify tags err with stage and settles its kind.
func classify(stage models.Stage, err error) error {
	kind := models.KindOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = transientKind(stage)
	}
	if models.KindOf(err) == kind {
		return models.WithStage(err, stage)
	}
	return &models.StageError{Kind: kind, Stage: stage, Message: "call failed", Err: err}
}

// attempt runs fn under the stage timeout, retrying retryable failures with
// exponential backoff until Policy.MaxAttempts is reached. Cancellation of ctx
// stops it immediately with KindCanceled.
func (s *DefaultFulfillmentService) attempt(ctx context.Context, bookingID string, stage models.Stage, fn func(context.Context) error) error {
	for n := 1; ; n++ {
		err := s.call(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &models.StageError{Kind: models.KindCanceled, Stage: stage, Message: "run canceled", Err: ctx.Err()}
		}
		err = classify(stage, err)
		if !models.IsRetryable(models.KindOf(err)) || n >= s.Policy.MaxAttempts {
			return err
		}

		delay := s.Policy.backoff(n)
		s.Logger.Warn("Stage attempt failed, retrying",
			zap.String("bookingId", bookingID),
			zap.String("stage", string(stage)),
			zap.Int("attempt", n),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if serr := s.sleep(ctx, delay); serr != nil {
			return &models.StageError{Kind: models.KindCanceled, Stage: stage, Message: "run canceled", Err: serr}
		}
	}
}

func (s *DefaultFulfillmentService) call(ctx context.Context, fn func(context.Context) error) error {
	if s.Policy.StageTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.Policy.StageTimeout)
	defer cancel()
	return fn(callCtx)
}
