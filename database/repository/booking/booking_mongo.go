package bookingRepo

import (
	"context"
	"errors"
	"time"

	"demobook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBookingRepo implements BookingRepository using MongoDB.
type MongoBookingRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
	now     func() time.Time
}

// NewMongoBookingRepo binds the repository to collection and ensures its indexes.
func NewMongoBookingRepo(db *mongo.Database, collection string) (*MongoBookingRepo, error) {
	repo := &MongoBookingRepo{
		coll:    db.Collection(collection),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *MongoBookingRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// leaseFilter matches id when it satisfies cond at now.
func leaseFilter(id string, cond models.Precondition, now time.Time) bson.M {
	return bson.M{
		"id":     id,
		"status": cond.Status,
		"$or": bson.A{
			bson.M{"run_id": ""},
			bson.M{"run_id": cond.RunID},
			bson.M{"lease_expires_at": bson.M{"$lte": now}},
		},
	}
}

// Create inserts a new booking document.
func (r *MongoBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.WrapError(models.KindConflict, err, "booking %s already exists", b.ID)
		}
		return classifyMongoError(err, "error creating booking %s", b.ID)
	}
	return nil
}

// Put replaces or inserts the booking document.
func (r *MongoBookingRepo) Put(ctx context.Context, b *models.Booking) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"id": b.ID}, b, opts); err != nil {
		return classifyMongoError(err, "error saving booking %s", b.ID)
	}
	return nil
}

// Get retrieves a booking document by id.
func (r *MongoBookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var b models.Booking
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.WrapError(models.KindNotFound, err, "booking %s", id)
		}
		return nil, classifyMongoError(err, "error fetching booking %s", id)
	}
	return &b, nil
}

func (r *MongoBookingRepo) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now().UTC()
	filter := leaseFilter(id, models.Precondition{Status: expected}, now)
	update := bson.M{"$set": bson.M{"status": next, "updated_at": now}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, classifyMongoError(err, "error swapping status of %s", id)
	}
	if res.MatchedCount == 0 {
		if err := r.mustExist(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Commit replaces the booking document only while the stored one satisfies cond.
func (r *MongoBookingRepo) Commit(ctx context.Context, b *models.Booking, cond models.Precondition) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.coll.ReplaceOne(ctx, leaseFilter(b.ID, cond, r.now().UTC()), b)
	if err != nil {
		return classifyMongoError(err, "error committing booking %s", b.ID)
	}
	if res.MatchedCount == 0 {
		if err := r.mustExist(ctx, b.ID); err != nil {
			return err
		}
		return models.WrapError(models.KindConflict, models.ErrConflict, "booking %s is no longer %s", b.ID, cond.Status)
	}
	return nil
}

// mustExist tells a failed precondition apart from a missing document.
func (r *MongoBookingRepo) mustExist(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"id": id}, options.Count().SetLimit(1))
	if err != nil {
		return classifyMongoError(err, "error counting booking %s", id)
	}
	if n == 0 {
		return models.WrapError(models.KindNotFound, models.ErrNotFound, "booking %s", id)
	}
	return nil
}

// Ping checks the server behind the collection.
func (r *MongoBookingRepo) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.coll.Database().Client().Ping(ctx, nil); err != nil {
		return classifyMongoError(err, "error pinging booking store")
	}
	return nil
}

// ListByStatus returns bookings in status, oldest update first.
func (r *MongoBookingRepo) ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, classifyMongoError(err, "error listing %s bookings", status)
	}
	defer cursor.Close(ctx)

	bookings := make([]models.Booking, 0)
	for cursor.Next(ctx) {
		var b models.Booking
		if err := cursor.Decode(&b); err != nil {
			return nil, models.WrapError(models.KindInternal, err, "error decoding booking")
		}
		bookings = append(bookings, b)
	}
	if err := cursor.Err(); err != nil {
		return nil, classifyMongoError(err, "cursor error")
	}
	return bookings, nil
}

func classifyMongoError(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, context.Canceled):
		return models.WrapError(models.KindCanceled, err, format, args...)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		return models.WrapError(models.KindProviderUnavailable, err, format, args...)
	}
	var sse mongo.ServerError
	if errors.As(err, &sse) {
		return models.WrapError(models.KindInternal, err, format, args...)
	}
	return models.WrapError(models.KindProviderUnavailable, err, format, args...)
}
