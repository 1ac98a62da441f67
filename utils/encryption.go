package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"globcrm/config"
)

// PurposeMailboxTokens namespaces mailbox OAuth tokens from other secrets
// encrypted elsewhere in the system. Ciphertexts written under one purpose
// never decrypt under another.
const PurposeMailboxTokens = "mailbox-oauth-tokens"

var ErrDecryptFailed = errors.New("ciphertext did not decrypt under any key in the ring")

// Cipher provides AES-256-GCM encryption of opaque secrets for at-rest
// storage. Each cipher derives one subkey per master key in the configured
// ring, namespaced by purpose via HKDF. Encryption always uses the newest
// key; decryption tries every key in the ring so that rotation stays
// transparent to callers.
type Cipher struct {
	purpose string
	keys    [][]byte // derived subkeys, newest first
}

// NewCipher builds a cipher for the given purpose from the configured key
// ring. Fails when no keys are configured.
func NewCipher(purpose string) (*Cipher, error) {
	return NewCipherWithKeys(purpose, config.AppConfig.EncryptionKeys)
}

// NewCipherWithKeys builds a cipher from an explicit key ring, newest first.
func NewCipherWithKeys(purpose string, masterKeys []string) (*Cipher, error) {
	if len(masterKeys) == 0 {
		return nil, errors.New("encryption key ring is empty")
	}

	keys := make([][]byte, 0, len(masterKeys))
	for _, mk := range masterKeys {
		key, err := deriveKey(mk, purpose)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return &Cipher{purpose: purpose, keys: keys}, nil
}

// deriveKey stretches a master key into a 32-byte AES key bound to the
// purpose string, so the same ring can protect unrelated secret classes.
func deriveKey(masterKey, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte("globcrm/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under the newest key and returns
// base64url(nonce || ciphertext || tag). Empty input stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := newGCM(c.keys[0])
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt, trying every key in the
// ring newest-first. GCM authentication rejects wrong keys, so a ciphertext
// written before a rotation still decrypts under its original key. Failure
// is fatal to the caller: a token that cannot be decrypted must never be
// silently replaced with garbage.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	for _, key := range c.keys {
		gcm, err := newGCM(key)
		if err != nil {
			return "", err
		}
		if len(decoded) < gcm.NonceSize() {
			return "", errors.New("ciphertext too short")
		}

		nonce, sealed := decoded[:gcm.NonceSize()], decoded[gcm.NonceSize():]
		plaintext, err := gcm.Open(nil, nonce, sealed, nil)
		if err == nil {
			return string(plaintext), nil
		}
	}

	return "", ErrDecryptFailed
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
