package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const minSaltLength = 16

// KeyParams are the Argon2id cost factors used to turn a passphrase into
// an AES key.
type KeyParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLength uint32
}

var DefaultKeyParams = KeyParams{Time: 2, MemoryKiB: 64 * 1024, Threads: 4, KeyLength: 32}

// IsAESKeyLength reports whether n bytes select AES-128, AES-192 or AES-256.
func IsAESKeyLength(n int) bool {
	return n == 16 || n == 24 || n == 32
}

func (p KeyParams) check() error {
	switch {
	case p.Time == 0:
		return errors.New("argon2: time cost must be greater than zero")
	case p.Threads == 0:
		return errors.New("argon2: parallelism must be greater than zero")
	case p.MemoryKiB < 8*uint32(p.Threads):
		return errors.New("argon2: memory cost must be at least 8 * threads")
	case !IsAESKeyLength(int(p.KeyLength)):
		return fmt.Errorf("argon2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
	return nil
}

// DeriveKey stretches secret with Argon2id. The same inputs always give the
// same key.
func DeriveKey(secret, salt []byte, p KeyParams) ([]byte, error) {
	switch {
	case len(secret) == 0:
		return nil, errors.New("argon2: secret is required")
	case len(salt) < minSaltLength:
		return nil, fmt.Errorf("argon2: salt must be at least %d bytes (got %d)", minSaltLength, len(salt))
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLength), nil
}
