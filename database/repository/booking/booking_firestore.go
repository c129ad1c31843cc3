package bookingRepo

import (
	"context"
	"errors"
	"time"

	"demobook/models"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBookingRepo implements BookingRepository on a Firestore collection,
// one document per booking id. Conditional writes run inside transactions.
type FirestoreBookingRepo struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreBookingRepo(client *firestore.Client, collection string) *FirestoreBookingRepo {
	return &FirestoreBookingRepo{client: client, collection: collection, now: time.Now}
}

// Ping reads at most one document of the collection.
func (r *FirestoreBookingRepo) Ping(ctx context.Context) error {
	iter := r.client.Collection(r.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return classifyFirestoreError(err, "error pinging booking store")
	}
	return nil
}

func (r *FirestoreBookingRepo) doc(id string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(id)
}

func (r *FirestoreBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if _, err := r.doc(b.ID).Create(ctx, b); err != nil {
		return classifyFirestoreError(err, "error creating booking %s", b.ID)
	}
	return nil
}

func (r *FirestoreBookingRepo) Put(ctx context.Context, b *models.Booking) error {
	if _, err := r.doc(b.ID).Set(ctx, b); err != nil {
		return classifyFirestoreError(err, "error saving booking %s", b.ID)
	}
	return nil
}

func (r *FirestoreBookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		return nil, classifyFirestoreError(err, "error fetching booking %s", id)
	}
	var b models.Booking
	if err := snap.DataTo(&b); err != nil {
		return nil, models.WrapError(models.KindInternal, err, "error decoding booking %s", id)
	}
	return &b, nil
}

func (r *FirestoreBookingRepo) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error) {
	swapped := false
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		swapped = false
		ref := r.doc(id)
		stored, err := r.load(tx, ref)
		if err != nil {
			return err
		}
		now := r.now().UTC()
		if !stored.Satisfies(models.Precondition{Status: expected}, now) {
			return nil
		}
		swapped = true
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(next)},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return false, classifyFirestoreError(err, "error swapping status of %s", id)
	}
	return swapped, nil
}

func (r *FirestoreBookingRepo) Commit(ctx context.Context, b *models.Booking, cond models.Precondition) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := r.doc(b.ID)
		stored, err := r.load(tx, ref)
		if err != nil {
			return err
		}
		if !stored.Satisfies(cond, r.now().UTC()) {
			return models.WrapError(models.KindConflict, models.ErrConflict, "booking %s is %s, expected %s", b.ID, stored.Status, cond.Status)
		}
		return tx.Set(ref, b)
	})
	if err != nil {
		return classifyFirestoreError(err, "error committing booking %s", b.ID)
	}
	return nil
}

func (r *FirestoreBookingRepo) load(tx *firestore.Transaction, ref *firestore.DocumentRef) (*models.Booking, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		return nil, err
	}
	var stored models.Booking
	if err := snap.DataTo(&stored); err != nil {
		return nil, models.WrapError(models.KindInternal, err, "error decoding booking %s", ref.ID)
	}
	return &stored, nil
}

func (r *FirestoreBookingRepo) ListByStatus(ctx context.Context, st models.BookingStatus, limit int) ([]models.Booking, error) {
	q := r.client.Collection(r.collection).
		Where("status", "==", string(st)).
		OrderBy("updatedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, classifyFirestoreError(err, "error listing %s bookings", st)
	}
	bookings := make([]models.Booking, 0, len(snaps))
	for _, snap := range snaps {
		var b models.Booking
		if err := snap.DataTo(&b); err != nil {
			return nil, models.WrapError(models.KindInternal, err, "error decoding booking %s", snap.Ref.ID)
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// classifyFirestoreError maps gRPC status codes onto booking error kinds.
// Errors that already carry a kind pass through.
func classifyFirestoreError(err error, format string, args ...any) error {
	var se *models.StageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return models.WrapError(models.KindCanceled, err, format, args...)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return models.WrapError(models.KindNotFound, err, format, args...)
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return models.WrapError(models.KindConflict, err, format, args...)
	case codes.Unauthenticated, codes.PermissionDenied:
		return models.WrapError(models.KindAuthExpired, err, format, args...)
	case codes.InvalidArgument:
		return models.WrapError(models.KindInternal, err, format, args...)
	}
	return models.WrapError(models.KindProviderUnavailable, err, format, args...)
}
