package bookingRepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"demobook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

func newTestRepo() *MemoryBookingRepo {
	r := NewMemoryBookingRepo()
	r.now = func() time.Time { return fixedNow }
	return r
}

func pendingBooking(id string) *models.Booking {
	return &models.Booking{
		ID:       id,
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Date:     "2025-08-10",
		Time:     "14:00",
		Status:   models.StatusPending,
		Progress: models.StatusPending,
	}
}

func TestMemoryRepo_CreateAndGet(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, pendingBooking("b-1")))

	got, err := repo.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, models.StatusPending, got.Status)

	err = repo.Create(ctx, pendingBooking("b-1"))
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, models.KindConflict, models.KindOf(err))
}

func TestMemoryRepo_GetMissing(t *testing.T) {
	_, err := newTestRepo().Get(context.Background(), "nope")
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestMemoryRepo_ReturnsCopies(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	b := pendingBooking("b-1")
	b.SetNote(models.StageNotify, "x")
	require.NoError(t, repo.Create(ctx, b))

	b.Notes[models.StageNotify] = "mutated"
	got, err := repo.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Notes[models.StageNotify])

	got.Status = models.StatusFailed
	again, _ := repo.Get(ctx, "b-1")
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestMemoryRepo_CompareAndSwapStatus(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	b := pendingBooking("b-1")
	b.Status = models.StatusPartiallyFulfilled
	require.NoError(t, repo.Create(ctx, b))

	ok, err := repo.CompareAndSwapStatus(ctx, "b-1", models.StatusPending, models.StatusFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.CompareAndSwapStatus(ctx, "b-1", models.StatusPartiallyFulfilled, models.StatusFailed)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := repo.Get(ctx, "b-1")
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, fixedNow, got.UpdatedAt)

	_, err = repo.CompareAndSwapStatus(ctx, "missing", models.StatusPending, models.StatusFailed)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestMemoryRepo_CompareAndSwapRespectsLease(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	b := pendingBooking("b-1")
	b.Status = models.StatusPartiallyFulfilled
	b.RunID = "run-a"
	b.LeaseExpiresAt = fixedNow.Add(time.Minute)
	require.NoError(t, repo.Create(ctx, b))

	ok, err := repo.CompareAndSwapStatus(ctx, "b-1", models.StatusPartiallyFulfilled, models.StatusFailed)
	require.NoError(t, err)
	assert.False(t, ok, "live lease blocks the swap")

	repo.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	ok, err = repo.CompareAndSwapStatus(ctx, "b-1", models.StatusPartiallyFulfilled, models.StatusFailed)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease no longer blocks")
}

func TestMemoryRepo_Commit(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, pendingBooking("b-1")))

	claim := pendingBooking("b-1")
	claim.RunID = "run-a"
	claim.LeaseExpiresAt = fixedNow.Add(time.Minute)
	require.NoError(t, repo.Commit(ctx, claim, models.Precondition{Status: models.StatusPending}))

	// Another run cannot take over a live lease.
	rival := claim.Clone()
	rival.RunID = "run-b"
	err := repo.Commit(ctx, rival, models.Precondition{Status: models.StatusPending, RunID: "run-b"})
	assert.Equal(t, models.KindConflict, models.KindOf(err))

	// The holder can advance.
	next := claim.Clone()
	next.Status = models.StatusLinkCreated
	next.Progress = models.StatusLinkCreated
	require.NoError(t, repo.Commit(ctx, next, models.Precondition{Status: models.StatusPending, RunID: "run-a"}))

	// Stale status loses.
	err = repo.Commit(ctx, next, models.Precondition{Status: models.StatusPending, RunID: "run-a"})
	assert.True(t, errors.Is(err, models.ErrConflict))

	err = repo.Commit(ctx, pendingBooking("missing"), models.Precondition{Status: models.StatusPending})
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestMemoryRepo_ListByStatus(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	for i, id := range []string{"c", "a", "b"} {
		b := pendingBooking(id)
		b.Status = models.StatusPartiallyFulfilled
		b.UpdatedAt = fixedNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Put(ctx, b))
	}
	require.NoError(t, repo.Put(ctx, pendingBooking("d")))

	got, err := repo.ListByStatus(ctx, models.StatusPartiallyFulfilled, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	all, err := repo.ListByStatus(ctx, models.StatusPartiallyFulfilled, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryRepo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestRepo().Get(ctx, "b-1")
	assert.Equal(t, models.KindCanceled, models.KindOf(err))
}
