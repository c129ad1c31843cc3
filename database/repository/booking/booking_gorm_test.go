package bookingRepo

import (
	"testing"
	"time"

	"demobook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newDryRunDB renders statements without a server.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=demobook dbname=demobook sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestSwapStatusStatement(t *testing.T) {
	db := newDryRunDB(t)
	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return swapStatus(tx, "b-1", models.StatusPartiallyFulfilled, models.StatusFailed, now)
	})

	assert.Contains(t, sql, `UPDATE "bookings" SET`)
	assert.Contains(t, sql, `"status"='Failed'`)
	assert.Contains(t, sql, "(id = 'b-1' AND status = 'PartiallyFulfilled')")
	// The lease alternatives must stay grouped, or OR would escape the id filter.
	assert.Contains(t, sql, "AND (run_id = '' OR lease_expires_at <= '2025-08-01 09:00:00")
}

func TestLockRowStatement(t *testing.T) {
	db := newDryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var b models.Booking
		return lockRow(tx, "b-1", &b)
	})

	assert.Contains(t, sql, `SELECT * FROM "bookings" WHERE id = 'b-1'`)
	assert.Contains(t, sql, "LIMIT 1 FOR UPDATE")
}
