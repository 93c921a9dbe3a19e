package identity

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
)

const (
	// SymmetricKeySize is the AES-256 key length.
	SymmetricKeySize = 32
	// NonceSize is the GCM nonce length (96 bits).
	NonceSize = 12
)

var (
	ErrInvalidKeySize   = errors.New("identity: invalid symmetric key size")
	ErrDecryptionFailed = errors.New("identity: decryption failed")
)

// SymmetricKey is a 256-bit AES-GCM key.
type SymmetricKey []byte

// GenerateSymmetricKey returns a fresh random 256-bit key.
func GenerateSymmetricKey() (SymmetricKey, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return key, nil
}

// DeriveKey derives a key of the given length from secret using HKDF-SHA256.
// info binds the derived key to its context.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DerivePreviewKey derives the symmetric key for an encrypted peer preview
// from a fresh random seed, bound to the rendezvous room id.
func DerivePreviewKey(seed []byte, roomID string) (SymmetricKey, error) {
	info := append([]byte("twinlink-preview:"), roomID...)
	key, err := DeriveKey(seed, nil, info, SymmetricKeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return key, nil
}

func newGCM(key SymmetricKey) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts the UTF-8 bytes of plaintext with AES-256-GCM.
// A fresh random 96-bit nonce is drawn on every call; ciphertext and nonce
// are returned base64-encoded. Nonce reuse under one key never occurs.
func Encrypt(plaintext string, key SymmetricKey) (ciphertext, iv string, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt reverses Encrypt. A wrong key, corrupted input, or failed
// authentication tag yields ErrDecryptionFailed, never garbage plaintext.
func Decrypt(ciphertext, iv string, key SymmetricKey) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(nonce) != NonceSize {
		return "", ErrDecryptionFailed
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
