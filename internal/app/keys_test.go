package app

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKeyHex(t *testing.T) {
	hexKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	decoded, err := DecodeKey(hexKey)
	require.NoError(t, err)
	require.Len(t, decoded, 32)
	require.Equal(t, byte(0x01), decoded[0])
}

func TestDecodeKeyBase64(t *testing.T) {
	raw := make([]byte, 24)
	for i := range raw {
		raw[i] = byte(i)
	}

	decoded, err := DecodeKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, decoded)

	decoded, err = DecodeKey(base64.RawStdEncoding.EncodeToString(raw[:16]))
	require.NoError(t, err)
	require.Equal(t, raw[:16], decoded)
}

func TestDecodeKeyRawAndEmpty(t *testing.T) {
	decoded, err := DecodeKey("not base64!")
	require.NoError(t, err)
	require.Equal(t, []byte("not base64!"), decoded)

	_, err = DecodeKey("   ")
	require.Error(t, err)
}

func TestEncryptionKeyUsesValidLengths(t *testing.T) {
	cfg := SecurityConfig{EncryptionKey: "0123456789abcdef0123456789abcdef"}
	key, err := cfg.AESKey()
	require.NoError(t, err)
	require.Len(t, key, 16)
}

func TestEncryptionKeyDerivesFromPassphrase(t *testing.T) {
	cfg := SecurityConfig{EncryptionKey: "correct horse battery staple"}
	first, err := cfg.AESKey()
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := cfg.AESKey()
	require.NoError(t, err)
	require.Equal(t, first, second)

	cfg.KeySalt = "another-installation-salt"
	salted, err := cfg.AESKey()
	require.NoError(t, err)
	require.NotEqual(t, first, salted)

	_, err = SecurityConfig{}.AESKey()
	require.Error(t, err)
}
