// Package identity provides the cryptographic identity service for twinlink.
//
// It holds a per-service ECDSA P-256 signing key pair (generated lazily,
// never persisted), signs and verifies byte strings, computes SHA-256
// digests, and performs AES-256-GCM authenticated encryption with a fresh
// random nonce per call. Private keys never leave the service; only public
// keys are exportable.
package identity
