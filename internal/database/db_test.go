package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, model := range Models() {
		require.True(t, migrator.HasTable(model), "expected table for %T", model)
	}
	require.True(t, migrator.HasTable("team_members"))
	require.True(t, migrator.HasTable("contact_tags"))
	require.True(t, migrator.HasTable("invitation_teams"))

	// Running twice is a no-op.
	require.NoError(t, AutoMigrate(db))
}

func TestTenantUniqueIndexes(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Create(&models.Tag{TenantModel: models.TenantModel{OrganizationID: "org-a"}, Name: "vip"}).Error)
	require.NoError(t, db.Create(&models.Tag{TenantModel: models.TenantModel{OrganizationID: "org-b"}, Name: "vip"}).Error)

	err := db.Create(&models.Tag{TenantModel: models.TenantModel{OrganizationID: "org-a"}, Name: "vip"}).Error
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestMembershipPairIsUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := models.User{Email: "member@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	require.NoError(t, db.Create(&models.Membership{OrganizationID: "org-a", UserID: user.ID}).Error)
	err := db.Create(&models.Membership{OrganizationID: "org-a", UserID: user.ID}).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestPendingInvitationKeyIsUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	key := "new@example.com"
	first := models.Invitation{OrganizationID: "org-a", Email: key, TokenHash: "a", Status: models.InvitationPending, PendingKey: &key}
	require.NoError(t, db.Create(&first).Error)

	dup := models.Invitation{OrganizationID: "org-a", Email: key, TokenHash: "b", Status: models.InvitationPending, PendingKey: &key}
	require.ErrorIs(t, db.Create(&dup).Error, gorm.ErrDuplicatedKey)

	// Terminal invitations release the key.
	cancelled := models.Invitation{OrganizationID: "org-a", Email: key, TokenHash: "c", Status: models.InvitationCancelled}
	require.NoError(t, db.Create(&cancelled).Error)
	another := models.Invitation{OrganizationID: "org-a", Email: key, TokenHash: "d", Status: models.InvitationExpired}
	require.NoError(t, db.Create(&another).Error)
}
