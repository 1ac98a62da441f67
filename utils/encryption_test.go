package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipherWithKeys(PurposeMailboxTokens, []string{"master-key-1"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"refresh token", "1//0gRefreshTokenValue"},
		{"long secret", "ya29." + strings.Repeat("a", 2048)},
		{"unicode", "tökén-ünïcode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := c.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ciphertext)

			decrypted, err := c.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestCipherEmptyInput(t *testing.T) {
	c, err := NewCipherWithKeys(PurposeMailboxTokens, []string{"master-key-1"})
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestCipherEmptyRing(t *testing.T) {
	_, err := NewCipherWithKeys(PurposeMailboxTokens, nil)
	require.Error(t, err)
}

func TestCipherNonDeterministic(t *testing.T) {
	c, err := NewCipherWithKeys(PurposeMailboxTokens, []string{"master-key-1"})
	require.NoError(t, err)

	first, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same plaintext")
	require.NoError(t, err)

	// Random nonce per call
	assert.NotEqual(t, first, second)
}

func TestCipherKeyRotation(t *testing.T) {
	oldRing, err := NewCipherWithKeys(PurposeMailboxTokens, []string{"old-master-key"})
	require.NoError(t, err)

	ciphertext, err := oldRing.Encrypt("token written before rotation")
	require.NoError(t, err)

	// After rotation the old key stays in the ring and old ciphertexts
	// still decrypt.
	rotated, err := NewCipherWithKeys(PurposeMailboxTokens, []string{"new-master-key", "old-master-key"})
	require.NoError(t, err)

	decrypted, err := rotated.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "token written before rotation", decrypted)

	// New ciphertexts use the newest key and are unreadable by a ring
	// holding only the old one.
	fresh, err := rotated.Encrypt("token written after rotation")
	require.NoError(t, err)

	_, err = oldRing.Decrypt(fresh)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestCipherPurposeSeparation(t *testing.T) {
	keys := []string{"shared-master-key"}

	tokens, err := NewCipherWithKeys(PurposeMailboxTokens, keys)
	require.NoError(t, err)
	other, err := NewCipherWithKeys("webhook-signing-secrets", keys)
	require.NoError(t, err)

	ciphertext, err := tokens.Encrypt("secret")
	require.NoError(t, err)

	// Same master key, different purpose: must not decrypt
	_, err = other.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestCipherRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewCipherWithKeys(PurposeMailboxTokens, []string{"master-key-1"})
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("secret")
	require.NoError(t, err)

	tampered := []byte(ciphertext)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	_, err = c.Decrypt(string(tampered))
	require.Error(t, err)

	_, err = c.Decrypt("not-even-base64!!!")
	require.Error(t, err)
}
