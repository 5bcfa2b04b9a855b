package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyIsStable(t *testing.T) {
	salt := bytes.Repeat([]byte{0xA5}, 16)

	first, err := DeriveKey([]byte("passphrase"), salt, DefaultKeyParams)
	require.NoError(t, err)
	again, err := DeriveKey([]byte("passphrase"), salt, DefaultKeyParams)
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.Len(t, first, 32)

	salted, err := DeriveKey([]byte("passphrase"), bytes.Repeat([]byte{0x01}, 16), DefaultKeyParams)
	require.NoError(t, err)
	require.NotEqual(t, first, salted)
}

func TestDeriveKeyRejectsBadInput(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, 16)

	cases := map[string]struct {
		secret, salt []byte
		params       KeyParams
		want         string
	}{
		"no secret":      {nil, salt, DefaultKeyParams, "secret is required"},
		"short salt":     {[]byte("s"), []byte("short"), DefaultKeyParams, "salt must be"},
		"odd key length": {[]byte("s"), salt, KeyParams{Time: 1, MemoryKiB: 64, Threads: 1, KeyLength: 20}, "key length"},
		"no time cost":   {[]byte("s"), salt, KeyParams{MemoryKiB: 64, Threads: 1, KeyLength: 32}, "time cost"},
		"starved memory": {[]byte("s"), salt, KeyParams{Time: 1, MemoryKiB: 8, Threads: 4, KeyLength: 32}, "memory cost"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DeriveKey(tc.secret, tc.salt, tc.params)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
