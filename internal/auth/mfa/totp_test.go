package mfa

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
)

func TestSetupStoresEncryptedData(t *testing.T) {
	db, user, service := setupService(t, time.Now)

	enrollment, err := service.Setup(context.Background(), user.ID, user.Email)
	require.NoError(t, err)
	require.Len(t, enrollment.BackupCodes, defaultBackupCodeCount)
	require.Contains(t, enrollment.OTPAuthURL, "otpauth://totp/")
	require.Contains(t, enrollment.OTPAuthURL, "issuer=CRM")

	var stored models.MFASecret
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.NotEqual(t, enrollment.Secret, stored.Secret)
	require.Nil(t, stored.ConfirmedAt)

	decrypted, err := crypto.Decrypt(stored.Secret, service.key)
	require.NoError(t, err)
	require.Equal(t, enrollment.Secret, string(decrypted))

	require.Len(t, stored.BackupCodes, defaultBackupCodeCount)
	for i := range stored.BackupCodes {
		require.True(t, crypto.VerifyPassword(stored.BackupCodes[i], enrollment.BackupCodes[i]))
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(enrollment.QRCode, "data:image/png;base64,"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
}

func TestSetupReplacesPreviousEnrollment(t *testing.T) {
	db, user, service := setupService(t, time.Now)
	ctx := context.Background()

	first, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	second, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	var count int64
	require.NoError(t, db.Model(&models.MFASecret{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConfirmAndVerifyCode(t *testing.T) {
	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db, user, service := setupService(t, func() time.Time { return current })
	ctx := context.Background()

	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)

	ok, err := service.Confirm(ctx, user.ID, "12345")
	require.NoError(t, err)
	require.False(t, ok)

	code, err := totp.GenerateCode(enrollment.Secret, current)
	require.NoError(t, err)

	ok, err = service.Confirm(ctx, user.ID, code)
	require.NoError(t, err)
	require.True(t, ok)

	var stored models.MFASecret
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.NotNil(t, stored.ConfirmedAt)
	require.NotNil(t, stored.LastUsedAt)

	ok, err = service.Verify(ctx, user.ID, code)
	require.NoError(t, err)
	require.True(t, ok)

	current = current.Add(10 * time.Minute)
	ok, err = service.Verify(ctx, user.ID, code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackupCodesAreSingleUse(t *testing.T) {
	_, user, service := setupService(t, time.Now)
	ctx := context.Background()

	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)

	code := enrollment.BackupCodes[3]
	ok, err := service.Verify(ctx, user.ID, strings.ToLower(code))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = service.Verify(ctx, user.ID, code)
	require.NoError(t, err)
	require.False(t, ok)

	remaining, err := service.RemainingBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, defaultBackupCodeCount-1, remaining)
}

func TestDisableRemovesEnrollment(t *testing.T) {
	_, user, service := setupService(t, time.Now)
	ctx := context.Background()

	_, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, service.Disable(ctx, user.ID))

	_, err = service.VerifyCode(ctx, user.ID, "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func setupService(t *testing.T, clock func() time.Time) (*gorm.DB, models.User, *TOTPService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	user := models.User{Email: "mfa@example.com", IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	service, err := NewTOTPService(db, bytes.Repeat([]byte{0x42}, 32), WithClock(clock))
	require.NoError(t, err)
	return db, user, service
}

func TestSpendRemovesOnlyTheMatchingHash(t *testing.T) {
	plain, hashed, err := issueBackupCodes(3)
	require.NoError(t, err)

	rest, ok := spend(hashed, plain[1])
	require.True(t, ok)
	require.Equal(t, []string{hashed[0], hashed[2]}, []string(rest))

	_, ok = spend(rest, plain[1])
	require.False(t, ok)
}
