package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/crmhub/pkg/crypto"
)

const defaultKeySalt = "crmhub.security.encryption-key"

var keyDecoders = []func(string) ([]byte, error){
	hex.DecodeString,
	base64.StdEncoding.DecodeString,
	base64.RawStdEncoding.DecodeString,
}

// DecodeKey reads a configured key as hex, then padded or raw base64.
// Values that decode as none of these are used verbatim.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}
	for _, decode := range keyDecoders {
		if raw, err := decode(v); err == nil && len(raw) > 0 {
			return raw, nil
		}
	}
	return []byte(v), nil
}

// AESKey is the key sealing MFA secrets and SSO state. A decoded value of a
// valid AES size is used as is; anything else is a passphrase stretched
// with Argon2id over KeySalt.
func (c SecurityConfig) AESKey() ([]byte, error) {
	raw, err := DecodeKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	if crypto.IsAESKeyLength(len(raw)) {
		return raw, nil
	}
	salt := strings.TrimSpace(c.KeySalt)
	if salt == "" {
		salt = defaultKeySalt
	}
	key, err := crypto.DeriveKey(raw, []byte(salt), crypto.DefaultKeyParams)
	if err != nil {
		return nil, fmt.Errorf("security: derive key: %w", err)
	}
	return key, nil
}
