package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindDeliveryRejected, KindOf(NewError(KindDeliveryRejected, "bad address")))
	assert.Equal(t, KindCanceled, KindOf(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, KindProviderUnavailable, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", WrapError(KindAuthExpired, errors.New("401"), "calendar"))
	assert.Equal(t, KindAuthExpired, KindOf(wrapped))
}

func TestStageError_Is(t *testing.T) {
	err := WrapError(KindConflict, errors.New("dup"), "booking b-1 already exists")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWithStage(t *testing.T) {
	err := WithStage(NewError(KindDeliveryRejected, "mailbox unavailable"), StageNotify)
	assert.Equal(t, "notify failed: DeliveryRejected: mailbox unavailable", err.Error())
	assert.Equal(t, KindDeliveryRejected, KindOf(err))

	plain := WithStage(context.DeadlineExceeded, StageSchedule)
	assert.Equal(t, KindProviderUnavailable, KindOf(plain))
	assert.True(t, errors.Is(plain, context.DeadlineExceeded))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(KindProviderUnavailable))
	assert.True(t, IsRetryable(KindRelayUnavailable))
	assert.False(t, IsRetryable(KindDeliveryRejected))
	assert.False(t, IsRetryable(KindAuthExpired))
}
