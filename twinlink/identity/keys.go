package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrKeyGeneration = errors.New("identity: key generation failed")
	ErrInvalidKey    = errors.New("identity: invalid public key encoding")
)

// KeyPair holds an ECDSA P-256 key pair used for signing peer entries and
// discovery payloads.
type KeyPair struct {
	Public  *ecdsa.PublicKey
	Private *ecdsa.PrivateKey
}

// Service is a cryptographic identity scoped to one logical device/session.
// Construct one per independent identity; there is no process-wide instance.
type Service struct {
	mu sync.Mutex
	kp *KeyPair
}

func NewService() *Service {
	return &Service{}
}

// GenerateKeyPair creates a fresh signing key pair and replaces the held one.
func (s *Service) GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	kp := KeyPair{Public: &priv.PublicKey, Private: priv}

	s.mu.Lock()
	s.kp = &kp
	s.mu.Unlock()
	return kp, nil
}

// KeyPair returns the held key pair, generating one on first use.
// Concurrent callers during first use all observe the same pair; only one
// performs the generation.
func (s *Service) KeyPair() (KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kp != nil {
		return *s.kp, nil
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	kp := KeyPair{Public: &priv.PublicKey, Private: priv}
	s.kp = &kp
	return kp, nil
}

// ExportPublicKey encodes a public key as base64 PKIX (SPKI) DER.
// Private keys are never exported.
func ExportPublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey decodes a base64 PKIX public key produced by ExportPublicKey.
func ImportPublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return pub, nil
}

// Sign signs the UTF-8 bytes of data with ECDSA P-256 over SHA-256.
// The signature is ASN.1 DER, base64-encoded.
func Sign(data string, priv *ecdsa.PrivateKey) (string, error) {
	digest := sha256.Sum256([]byte(data))
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return "", fmt.Errorf("identity: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid signature of data under pub.
// It fails closed: any decoding or cryptographic error yields false.
func Verify(data, signature string, pub *ecdsa.PublicKey) bool {
	if pub == nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(data))
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}
