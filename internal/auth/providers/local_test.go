package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
)

// localHarness is a LocalProvider on a fresh database with a settable clock.
type localHarness struct {
	t        *testing.T
	db       *gorm.DB
	at       time.Time
	provider *LocalProvider
}

func newLocalHarness(t *testing.T, cfg LocalConfig) *localHarness {
	t.Helper()
	h := &localHarness{t: t, db: testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), at: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	cfg.Clock = func() time.Time { return h.at }
	var err error
	h.provider, err = NewLocalProvider(h.db, cfg)
	require.NoError(t, err)
	return h
}

func (h *localHarness) user(email, password string, edit func(*models.User)) models.User {
	h.t.Helper()
	u := models.User{Email: email, IsActive: true}
	if password != "" {
		hashed, err := crypto.HashPassword(password)
		require.NoError(h.t, err)
		u.Password = hashed
	}
	if edit != nil {
		edit(&u)
	}
	active := u.IsActive
	require.NoError(h.t, h.db.Create(&u).Error)
	if !active {
		// is_active defaults to true, so a false value is skipped on insert.
		require.NoError(h.t, h.db.Model(&u).Update("is_active", false).Error)
	}
	return u
}

func (h *localHarness) login(email, password string) error {
	_, err := h.provider.Authenticate(context.Background(), AuthenticateInput{Email: email, Password: password})
	return err
}

func (h *localHarness) reload(id string) models.User {
	h.t.Helper()
	var u models.User
	require.NoError(h.t, h.db.Take(&u, "id = ?", id).Error)
	return u
}

func TestLockoutFail(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	policy := lockout{limit: 3, window: time.Minute}

	cols, err := policy.fail(2, now)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, map[string]any{"failed_attempts": 2}, cols)

	cols, err = policy.fail(3, now)
	require.ErrorIs(t, err, ErrAccountLocked)
	require.Equal(t, now.Add(time.Minute), cols["locked_until"])
}

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	h := newLocalHarness(t, LocalConfig{})
	alice := h.user("alice@example.com", "password123", func(u *models.User) { u.FailedAttempts = 3 })

	got, err := h.provider.Authenticate(context.Background(), AuthenticateInput{
		Email:     " Alice@Example.com ",
		Password:  "password123",
		IPAddress: "127.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.ID)

	stored := h.reload(alice.ID)
	require.Zero(t, stored.FailedAttempts)
	require.Nil(t, stored.LockedUntil)
	require.NotNil(t, stored.LastLoginAt)
	require.True(t, stored.LastLoginAt.Equal(h.at))
	require.Equal(t, "127.0.0.1", stored.LastLoginIP)
}

func TestRepeatedFailuresLockTheAccount(t *testing.T) {
	h := newLocalHarness(t, LocalConfig{LockoutThreshold: 3, LockoutDuration: 10 * time.Minute})
	bob := h.user("bob@example.com", "correct", func(u *models.User) { u.FailedAttempts = 1 })

	require.ErrorIs(t, h.login("bob@example.com", "wrong"), ErrInvalidCredentials)
	require.ErrorIs(t, h.login("bob@example.com", "wrong"), ErrAccountLocked)

	stored := h.reload(bob.ID)
	require.Equal(t, 3, stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)
	require.WithinDuration(t, h.at.Add(10*time.Minute), *stored.LockedUntil, time.Second)

	// The right password does not help while locked.
	require.ErrorIs(t, h.login("bob@example.com", "correct"), ErrAccountLocked)

	h.at = h.at.Add(11 * time.Minute)
	require.NoError(t, h.login("bob@example.com", "correct"))
}

func TestAuthenticateLapsedLockRestartsCount(t *testing.T) {
	h := newLocalHarness(t, LocalConfig{LockoutThreshold: 2})
	lapsed := h.at.Add(-time.Minute)
	carl := h.user("carl@example.com", "correct", func(u *models.User) {
		u.FailedAttempts = 2
		u.LockedUntil = &lapsed
	})

	require.ErrorIs(t, h.login("carl@example.com", "wrong"), ErrInvalidCredentials)
	stored := h.reload(carl.ID)
	require.Equal(t, 1, stored.FailedAttempts)
	require.Nil(t, stored.LockedUntil)

	require.ErrorIs(t, h.login("carl@example.com", "wrong"), ErrAccountLocked)
}

func TestAuthenticateRejections(t *testing.T) {
	h := newLocalHarness(t, LocalConfig{})
	h.user("diana@example.com", "correct", func(u *models.User) { u.IsActive = false })
	h.user("sso@example.com", "", func(u *models.User) { u.AuthProvider = "google" })

	cases := []struct {
		email, password string
		want            error
	}{
		{"diana@example.com", "correct", ErrAccountDisabled},
		{"sso@example.com", "", ErrInvalidCredentials},
		{"sso@example.com", "anything", ErrInvalidCredentials},
		{"nobody@example.com", "anything", ErrInvalidCredentials},
	}
	for _, tc := range cases {
		require.ErrorIs(t, h.login(tc.email, tc.password), tc.want, tc.email)
	}
}

func TestChangeAndSetPassword(t *testing.T) {
	h := newLocalHarness(t, LocalConfig{})
	ctx := context.Background()
	frank := h.user("frank@example.com", "initial", nil)

	require.NoError(t, h.provider.ChangePassword(ctx, frank.ID, "initial", "updated"))
	require.True(t, crypto.VerifyPassword(h.reload(frank.ID).Password, "updated"))
	require.ErrorIs(t, h.provider.ChangePassword(ctx, frank.ID, "wrong", "another"), ErrInvalidCredentials)

	require.NoError(t, h.provider.SetPassword(h.db, frank.ID, "reset-pass"))
	require.ErrorIs(t, h.provider.SetPassword(nil, "missing", "whatever"), ErrInvalidCredentials)
	require.NoError(t, h.login("frank@example.com", "reset-pass"))
}
