package mfa

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/charlesng35/crmhub/pkg/crypto"
)

const backupCodeLength = 10

// issueBackupCodes returns n fresh codes and their argon2 hashes, index aligned.
func issueBackupCodes(n int) ([]string, datatypes.JSONSlice[string], error) {
	plain := make([]string, n)
	hashed := make(datatypes.JSONSlice[string], n)
	for i := range n {
		code, err := crypto.GenerateCode(backupCodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("totp: generate backup code: %w", err)
		}
		if hashed[i], err = crypto.HashPassword(code); err != nil {
			return nil, nil, fmt.Errorf("totp: hash backup code: %w", err)
		}
		plain[i] = code
	}
	return plain, hashed, nil
}

// spend drops the first hash matching code. ok is false when none does.
func spend(hashes []string, code string) (rest datatypes.JSONSlice[string], ok bool) {
	for i, h := range hashes {
		if crypto.VerifyPassword(h, code) {
			rest = make(datatypes.JSONSlice[string], 0, len(hashes)-1)
			rest = append(rest, hashes[:i]...)
			return append(rest, hashes[i+1:]...), true
		}
	}
	return nil, false
}

// UseBackupCode accepts each backup code once, case-insensitively.
func (s *TOTPService) UseBackupCode(ctx context.Context, userID, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false, nil
	}
	record, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	rest, ok := spend(record.BackupCodes, code)
	if !ok {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(record).Update("backup_codes", rest).Error; err != nil {
		return false, fmt.Errorf("totp: update backup codes: %w", err)
	}
	return true, nil
}
