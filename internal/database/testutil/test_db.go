// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database"
)

// TestDBOption runs against a freshly opened test database.
type TestDBOption func(testing.TB, *gorm.DB)

// WithAutoMigrate creates the full schema.
func WithAutoMigrate() TestDBOption {
	return func(t testing.TB, db *gorm.DB) {
		require.NoError(t, database.AutoMigrate(db), "migrate test database")
	}
}

// WithRows inserts rows in the order given; pass it
// after WithAutoMigrate.
func WithRows(rows ...any) TestDBOption {
	return func(t testing.TB, db *gorm.DB) {
		for _, row := range rows {
			require.NoError(t, db.Create(row).Error, "seed %T", row)
		}
	}
}

// MustOpenTestDB opens a private in-memory SQLite database. The name is
// random so parallel tests sharing the process cache stay isolated. The
// handle is closed when the test ends.
func MustOpenTestDB(t testing.TB, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, opt := range opts {
		opt(t, db)
	}
	return db
}
