package bookingRepo

import (
	"context"
	"errors"
	"time"

	"demobook/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBookingRepo implements BookingRepository on a relational table via gorm.
// The handle must be opened with TranslateError so duplicate keys surface as
// gorm.ErrDuplicatedKey.
type GormBookingRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormBookingRepo(db *gorm.DB) *GormBookingRepo {
	return &GormBookingRepo{db: db, now: time.Now}
}

func (r *GormBookingRepo) Migrate() error {
	return r.db.AutoMigrate(&models.Booking{})
}

func (r *GormBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return classifyGormError(err, "error creating booking %s", b.ID)
	}
	return nil
}

func (r *GormBookingRepo) Put(ctx context.Context, b *models.Booking) error {
	if err := r.db.WithContext(ctx).Save(b).Error; err != nil {
		return classifyGormError(err, "error saving booking %s", b.ID)
	}
	return nil
}

func (r *GormBookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, classifyGormError(err, "error fetching booking %s", id)
	}
	return &b, nil
}

func (r *GormBookingRepo) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.BookingStatus) (bool, error) {
	now := r.now().UTC()
	res := swapStatus(r.db.WithContext(ctx), id, expected, next, now)
	if res.Error != nil {
		return false, classifyGormError(res.Error, "error swapping status of %s", id)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Commit locks the row, checks cond against it and saves b in one transaction.
func (r *GormBookingRepo) Commit(ctx context.Context, b *models.Booking, cond models.Precondition) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.Booking
		if err := lockRow(tx, b.ID, &stored).Error; err != nil {
			return err
		}
		if !stored.Satisfies(cond, r.now().UTC()) {
			return models.WrapError(models.KindConflict, models.ErrConflict, "booking %s is %s, expected %s", b.ID, stored.Status, cond.Status)
		}
		return tx.Save(b).Error
	})
	if err != nil {
		return classifyGormError(err, "error committing booking %s", b.ID)
	}
	return nil
}

// swapStatus updates id from expected to next while no live lease holds it.
func swapStatus(tx *gorm.DB, id string, expected, next models.BookingStatus, now time.Time) *gorm.DB {
	return tx.Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, expected).
		Where("run_id = '' OR lease_expires_at <= ?", now).
		Updates(map[string]any{"status": next, "updated_at": now})
}

// lockRow loads id into dest under SELECT ... FOR UPDATE.
func lockRow(tx *gorm.DB, id string, dest *models.Booking) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, "id = ?", id)
}

func (r *GormBookingRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return classifyGormError(err, "error opening booking store handle")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classifyGormError(err, "error pinging booking store")
	}
	return nil
}

func (r *GormBookingRepo) ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("updated_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	bookings := make([]models.Booking, 0)
	if err := q.Find(&bookings).Error; err != nil {
		return nil, classifyGormError(err, "error listing %s bookings", status)
	}
	return bookings, nil
}

func classifyGormError(err error, format string, args ...any) error {
	var se *models.StageError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.WrapError(models.KindNotFound, err, format, args...)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return models.WrapError(models.KindConflict, err, format, args...)
	case errors.Is(err, context.Canceled):
		return models.WrapError(models.KindCanceled, err, format, args...)
	}
	return models.WrapError(models.KindProviderUnavailable, err, format, args...)
}
