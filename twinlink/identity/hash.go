package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Hash returns the base64 SHA-256 digest of the UTF-8 bytes of data.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HashEmbedding hashes the canonical serialization of an embedding vector.
// Components are rendered with fixed precision so repeated hashing of the
// same vector is stable on one device. The hash is used for anti-tamper
// only; it is never compared across peers computing vectors independently.
func HashEmbedding(vector []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
	b.WriteByte(']')
	return Hash(b.String())
}

// GenerateRoomID returns 16 cryptographically random bytes as 32 lowercase
// hex characters, used as the rendezvous channel name.
func GenerateRoomID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return hex.EncodeToString(buf[:]), nil
}
