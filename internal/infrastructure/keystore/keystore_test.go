package keystore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func init() {
	scryptN = 1 << 10
}

func TestStore(t *testing.T) {
	datadir := t.TempDir()
	store := NewStore(datadir)
	require.False(t, store.IsInitialized())

	_, err := store.Unlock("password")
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = store.Init("short")
	require.Error(t, err)
	require.False(t, store.IsInitialized())

	mnemonic, err := store.Init("password")
	require.NoError(t, err)
	require.Len(t, strings.Fields(mnemonic), 24)
	require.True(t, store.IsInitialized())

	// Never stored in clear.
	data, err := os.ReadFile(filepath.Join(datadir, "mnemonic"))
	require.NoError(t, err)
	require.NotContains(t, string(data), strings.Fields(mnemonic)[0]+" ")

	_, err = store.Init("password")
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	unlocked, err := store.Unlock("password")
	require.NoError(t, err)
	require.Equal(t, mnemonic, unlocked)

	_, err = store.Unlock("wrong password")
	require.ErrorIs(t, err, ErrWrongPassword)

	seed, err := store.Seed("password")
	require.NoError(t, err)
	require.Len(t, seed, 64)
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
	}{
		{"", false},
		{"1234567", false},
		{"12345678", true},
		{"a much longer passphrase", true},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := CheckPasswordStrength(tt.password)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestEntropySource(t *testing.T) {
	for _, seed := range [][]byte{nil, make([]byte, 64)} {
		source := NewEntropySource(seed)
		require.NotEqual(t, source.SecureRandomBytes(), source.SecureRandomBytes())
	}
}
