package bookingRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"demobook/models"
)

// MemoryBookingRepo keeps bookings in process. It backs STORE_DRIVER=memory and tests.
type MemoryBookingRepo struct {
	mu    sync.Mutex
	items map[string]*models.Booking
	now   func() time.Time
}

func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{items: make(map[string]*models.Booking), now: time.Now}
}

// WithClock replaces the clock used to judge run leases.
func (r *MemoryBookingRepo) WithClock(now func() time.Time) *MemoryBookingRepo {
	r.now = now
	return r
}

func (r *MemoryBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return models.WrapError(models.KindCanceled, err, "create booking %s", b.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[b.ID]; ok {
		return models.WrapError(models.KindConflict, models.ErrConflict, "booking %s already exists", b.ID)
	}
	r.items[b.ID] = b.Clone()
	return nil
}

func (r *MemoryBookingRepo) Put(ctx context.Context, b *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return models.WrapError(models.KindCanceled, err, "put booking %s", b.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[b.ID] = b.Clone()
	return nil
}

func (r *MemoryBookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapError(models.KindCanceled, err, "get booking %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return nil, models.WrapError(models.KindNotFound, models.ErrNotFound, "booking %s", id)
	}
	return b.Clone(), nil
}

func (r *MemoryBookingRepo) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, models.WrapError(models.KindCanceled, err, "swap status of %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return false, models.WrapError(models.KindNotFound, models.ErrNotFound, "booking %s", id)
	}
	now := r.now()
	if !b.Satisfies(models.Precondition{Status: expected}, now) {
		return false, nil
	}
	b.Status = next
	b.UpdatedAt = now
	return true, nil
}

func (r *MemoryBookingRepo) Commit(ctx context.Context, b *models.Booking, cond models.Precondition) error {
	if err := ctx.Err(); err != nil {
		return models.WrapError(models.KindCanceled, err, "commit booking %s", b.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[b.ID]
	if !ok {
		return models.WrapError(models.KindNotFound, models.ErrNotFound, "booking %s", b.ID)
	}
	if !stored.Satisfies(cond, r.now()) {
		return models.WrapError(models.KindConflict, models.ErrConflict, "booking %s is %s, expected %s", b.ID, stored.Status, cond.Status)
	}
	r.items[b.ID] = b.Clone()
	return nil
}

func (r *MemoryBookingRepo) ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.WrapError(models.KindCanceled, err, "list bookings")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Booking, 0)
	for _, b := range r.items {
		if b.Status == status {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping only reports a canceled context.
func (r *MemoryBookingRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
