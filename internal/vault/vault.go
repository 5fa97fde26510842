// Package vault encrypts per-tenant provider API keys at rest.
//
// Every value is sealed with AES-256-GCM under a key derived from the
// master secret via HKDF-SHA256 with a fresh random salt, so two
// encryptions of the same plaintext never share a key or a nonce. The
// stored blob layout is:
//
//	salt (16 bytes) || nonce (12 bytes) || ciphertext+tag
//
// [Keychain] layers a bounded plaintext cache and the persistence hookup
// on top so providers can resolve tenant keys cheaply at build time.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	// hkdfInfo binds derived keys to this use. Changing it invalidates
	// every stored blob.
	hkdfInfo = "parley/tenant-api-key/v1"
)

// ErrInvalidCiphertext is returned when a stored blob is too short or
// fails authentication.
var ErrInvalidCiphertext = errors.New("vault: invalid ciphertext")

// Vault seals and opens tenant secrets under one master secret. It is
// stateless and safe for concurrent use.
type Vault struct {
	master []byte
}

// New creates a Vault. The master secret must be non-empty; it is
// typically sourced from the environment and never stored.
func New(masterSecret []byte) (*Vault, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("vault: master secret must not be empty")
	}
	master := make([]byte, len(masterSecret))
	copy(master, masterSecret)
	return &Vault{master: master}, nil
}

// Encrypt seals plaintext and returns the salt||nonce||ciphertext blob.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("vault: read salt: %w", err)
	}

	aead, err := v.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: read nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+nonceSize+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return aead.Seal(blob, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by [Vault.Encrypt]. Tampered or truncated
// blobs yield [ErrInvalidCiphertext].
func (v *Vault) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, ErrInvalidCiphertext
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	aead, err := v.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// aead derives the per-blob AES-256 key from the master secret and salt.
func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key, err := hkdf.Key(sha256.New, v.master, salt, hkdfInfo, keySize)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return aead, nil
}
