// Package mfa implements TOTP second factors with single-use backup codes.
package mfa

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
)

const (
	defaultIssuer          = "CRM SaaS"
	defaultBackupCodeCount = 10
	qrSize                 = 256
)

var ErrNotEnrolled = errors.New("totp: user is not enrolled")

// RFC 6238 defaults, accepting one step of drift either way.
var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type Option func(*TOTPService)

func WithIssuer(issuer string) Option {
	return func(s *TOTPService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

func WithBackupCodeCount(n int) Option {
	return func(s *TOTPService) {
		if n > 0 {
			s.backupCodes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TOTPService) {
		if now != nil {
			s.now = now
		}
	}
}

// Enrollment is handed out once by Setup. Neither the secret nor the backup
// codes can be read back later.
type Enrollment struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// TOTPService keeps one AES-GCM sealed seed per user in mfa_secrets.
type TOTPService struct {
	db          *gorm.DB
	key         []byte
	issuer      string
	backupCodes int
	now         func() time.Time
}

func NewTOTPService(db *gorm.DB, encryptionKey []byte, opts ...Option) (*TOTPService, error) {
	switch {
	case db == nil:
		return nil, errors.New("totp: db is required")
	case len(encryptionKey) == 0:
		return nil, errors.New("totp: encryption key is required")
	}
	s := &TOTPService{
		db:          db,
		key:         encryptionKey,
		issuer:      defaultIssuer,
		backupCodes: defaultBackupCodeCount,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Setup starts a new, unconfirmed enrollment and drops any previous one.
func (s *TOTPService) Setup(ctx context.Context, userID, accountName string) (*Enrollment, error) {
	userID, accountName = strings.TrimSpace(userID), strings.TrimSpace(accountName)
	if userID == "" || accountName == "" {
		return nil, errors.New("totp: user id and account name are required")
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: accountName})
	if err != nil {
		return nil, fmt.Errorf("totp: generate key: %w", err)
	}
	sealed, err := crypto.Encrypt([]byte(key.Secret()), s.key)
	if err != nil {
		return nil, fmt.Errorf("totp: encrypt secret: %w", err)
	}
	plain, hashed, err := issueBackupCodes(s.backupCodes)
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.Encode(key.String(), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("totp: render qr code: %w", err)
	}

	record := models.MFASecret{UserID: userID, Secret: sealed, BackupCodes: hashed}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.MFASecret{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("totp: store mfa secret: %w", err)
	}

	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		QRCode:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(qr),
		BackupCodes: plain,
	}, nil
}

// Confirm checks the first code from the authenticator and stamps confirmed_at.
func (s *TOTPService) Confirm(ctx context.Context, userID, code string) (bool, error) {
	if ok, err := s.VerifyCode(ctx, userID, code); !ok || err != nil {
		return false, err
	}
	err := s.db.WithContext(ctx).Model(&models.MFASecret{}).
		Where("user_id = ?", userID).
		Update("confirmed_at", s.now()).Error
	if err != nil {
		return false, fmt.Errorf("totp: confirm secret: %w", err)
	}
	return true, nil
}

// Verify takes a six digit authenticator code or, failing that shape, a backup code.
func (s *TOTPService) Verify(ctx context.Context, userID, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if len(code) == validateOpts.Digits.Length() {
		return s.VerifyCode(ctx, userID, code)
	}
	return s.UseBackupCode(ctx, userID, code)
}

func (s *TOTPService) VerifyCode(ctx context.Context, userID, code string) (bool, error) {
	if code = strings.TrimSpace(code); code == "" {
		return false, nil
	}
	record, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	seed, err := crypto.Decrypt(record.Secret, s.key)
	if err != nil {
		return false, fmt.Errorf("totp: decrypt secret: %w", err)
	}

	at := s.now()
	if ok, err := totp.ValidateCustom(code, string(seed), at.UTC(), validateOpts); err != nil || !ok {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(record).Update("last_used_at", at).Error; err != nil {
		return false, fmt.Errorf("totp: update last used: %w", err)
	}
	return true, nil
}

func (s *TOTPService) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	record, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(record.BackupCodes), nil
}

// Disable forgets the seed and every backup code.
func (s *TOTPService) Disable(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(userID)).Delete(&models.MFASecret{}).Error
	if err != nil {
		return fmt.Errorf("totp: delete secret: %w", err)
	}
	return nil
}

func (s *TOTPService) load(ctx context.Context, userID string) (*models.MFASecret, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		return nil, errors.New("totp: user id is required")
	}
	var record models.MFASecret
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotEnrolled
	case err != nil:
		return nil, fmt.Errorf("totp: load secret: %w", err)
	}
	return &record, nil
}
