package bookingRepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"demobook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var (
	_ Pinger = (*MongoBookingRepo)(nil)
	_ Pinger = (*FirestoreBookingRepo)(nil)
	_ Pinger = (*GormBookingRepo)(nil)
	_ Pinger = (*MemoryBookingRepo)(nil)
)

// matchesLeaseFilter evaluates the operators leaseFilter emits against b.
func matchesLeaseFilter(t *testing.T, filter bson.M, b *models.Booking) bool {
	t.Helper()
	if filter["id"] != b.ID || filter["status"] != b.Status {
		return false
	}
	alternatives, ok := filter["$or"].(bson.A)
	require.True(t, ok, "leaseFilter must carry an $or clause")
	for _, alt := range alternatives {
		m := alt.(bson.M)
		switch {
		case m["run_id"] != nil:
			if m["run_id"] == b.RunID {
				return true
			}
		case m["lease_expires_at"] != nil:
			bound := m["lease_expires_at"].(bson.M)["$lte"].(time.Time)
			if !b.LeaseExpiresAt.After(bound) {
				return true
			}
		default:
			t.Fatalf("unexpected clause %v", m)
		}
	}
	return false
}

func TestLeaseFilter(t *testing.T) {
	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	stored := func(status models.BookingStatus, runID string, expires time.Time) *models.Booking {
		return &models.Booking{ID: "b-1", Status: status, RunID: runID, LeaseExpiresAt: expires}
	}
	tests := []struct {
		name   string
		stored *models.Booking
		cond   models.Precondition
		want   bool
	}{
		{"free lease", stored(models.StatusPending, "", time.Time{}), models.Precondition{Status: models.StatusPending, RunID: "run-a"}, true},
		{"status mismatch", stored(models.StatusScheduled, "", time.Time{}), models.Precondition{Status: models.StatusPending, RunID: "run-a"}, false},
		{"foreign live lease", stored(models.StatusPending, "run-b", now.Add(time.Minute)), models.Precondition{Status: models.StatusPending, RunID: "run-a"}, false},
		{"foreign expired lease", stored(models.StatusPending, "run-b", now.Add(-time.Second)), models.Precondition{Status: models.StatusPending, RunID: "run-a"}, true},
		{"lease expiring now", stored(models.StatusPending, "run-b", now), models.Precondition{Status: models.StatusPending, RunID: "run-a"}, true},
		{"own lease", stored(models.StatusLinkCreated, "run-a", now.Add(time.Minute)), models.Precondition{Status: models.StatusLinkCreated, RunID: "run-a"}, true},
		{"cas against live lease", stored(models.StatusPartiallyFulfilled, "run-b", now.Add(time.Minute)), models.Precondition{Status: models.StatusPartiallyFulfilled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := leaseFilter("b-1", tt.cond, now)
			assert.Equal(t, tt.want, matchesLeaseFilter(t, filter, tt.stored))
			assert.Equal(t, tt.stored.Satisfies(tt.cond, now), tt.want, "filter agrees with Booking.Satisfies")
		})
	}
}

func TestLeaseFilter_OtherID(t *testing.T) {
	now := time.Now()
	filter := leaseFilter("b-1", models.Precondition{Status: models.StatusPending}, now)
	assert.False(t, matchesLeaseFilter(t, filter, &models.Booking{ID: "b-2", Status: models.StatusPending}))
}

func newMockMongoRepo(mt *mtest.T) *MongoBookingRepo {
	return &MongoBookingRepo{
		coll:    mt.Coll,
		timeout: 5 * time.Second,
		now:     func() time.Time { return time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func countResponse(mt *mtest.T, n int32) bson.D {
	ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
	if n == 0 {
		return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
}

func TestMongoCommit(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	b := &models.Booking{ID: "b-1", Status: models.StatusLinkCreated, RunID: "run-a"}
	cond := models.Precondition{Status: models.StatusPending, RunID: "run-a"}

	mt.Run("matched", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(mt, newMockMongoRepo(mt).Commit(context.Background(), b, cond))
	})

	mt.Run("precondition failed", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countResponse(mt, 1),
		)
		err := newMockMongoRepo(mt).Commit(context.Background(), b, cond)
		assert.True(mt, errors.Is(err, models.ErrConflict), "got %v", err)
	})

	mt.Run("missing document", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countResponse(mt, 0),
		)
		err := newMockMongoRepo(mt).Commit(context.Background(), b, cond)
		assert.True(mt, errors.Is(err, models.ErrNotFound), "got %v", err)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "bad filter"}))
		err := newMockMongoRepo(mt).Commit(context.Background(), b, cond)
		assert.Equal(mt, models.KindInternal, models.KindOf(err))
	})
}

func TestMongoCompareAndSwapStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("swapped", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		ok, err := newMockMongoRepo(mt).CompareAndSwapStatus(context.Background(), "b-1", models.StatusPartiallyFulfilled, models.StatusFailed)
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("precondition failed", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countResponse(mt, 1),
		)
		ok, err := newMockMongoRepo(mt).CompareAndSwapStatus(context.Background(), "b-1", models.StatusPartiallyFulfilled, models.StatusFailed)
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("missing document", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countResponse(mt, 0),
		)
		ok, err := newMockMongoRepo(mt).CompareAndSwapStatus(context.Background(), "b-1", models.StatusPartiallyFulfilled, models.StatusFailed)
		assert.False(mt, ok)
		assert.True(mt, errors.Is(err, models.ErrNotFound), "got %v", err)
	})
}
