package identity

import (
	"regexp"
	"strings"
	"sync"
	"testing"
)

func TestSignVerify(t *testing.T) {
	svc := NewService()
	kp, err := svc.KeyPair()
	if err != nil {
		t.Fatalf("KeyPair: %v", err)
	}

	sig, err := Sign("hello twinlink", kp.Private)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify("hello twinlink", sig, kp.Public) {
		t.Fatalf("signature verification failed")
	}
	if Verify("hello twinlinK", sig, kp.Public) {
		t.Fatalf("expected verification to fail for mutated data")
	}

	other, _ := NewService().KeyPair()
	if Verify("hello twinlink", sig, other.Public) {
		t.Fatalf("expected verification to fail with foreign public key")
	}
	if Verify("hello twinlink", "not base64!!", kp.Public) {
		t.Fatalf("expected verification to fail closed on bad encoding")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	kp, err := NewService().KeyPair()
	if err != nil {
		t.Fatalf("KeyPair: %v", err)
	}
	encoded, err := ExportPublicKey(kp.Public)
	if err != nil {
		t.Fatalf("ExportPublicKey: %v", err)
	}
	pub, err := ImportPublicKey(encoded)
	if err != nil {
		t.Fatalf("ImportPublicKey: %v", err)
	}

	sig, _ := Sign("payload", kp.Private)
	if !Verify("payload", sig, pub) {
		t.Fatalf("imported key does not verify signatures from original")
	}

	if _, err := ImportPublicKey("garbage"); err == nil {
		t.Fatalf("expected error importing garbage")
	}
}

func TestLazyKeyPairShared(t *testing.T) {
	svc := NewService()
	const n = 8
	pairs := make([]KeyPair, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kp, err := svc.KeyPair()
			if err != nil {
				t.Errorf("KeyPair: %v", err)
				return
			}
			pairs[i] = kp
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if !pairs[i].Public.Equal(pairs[0].Public) {
			t.Fatalf("concurrent callers observed different key pairs")
		}
	}

	regen, err := svc.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if regen.Public.Equal(pairs[0].Public) {
		t.Fatalf("GenerateKeyPair did not replace the held pair")
	}
}

func TestHashEmbedding(t *testing.T) {
	v := []float64{1, 0, 0.5}
	if HashEmbedding(v) != HashEmbedding([]float64{1, 0, 0.5}) {
		t.Fatalf("embedding hash not stable")
	}
	if HashEmbedding(v) == HashEmbedding([]float64{1, 0, 0.5000001}) {
		t.Fatalf("embedding hash ignored component change above precision")
	}
	if HashEmbedding(nil) != Hash("[]") {
		t.Fatalf("empty vector canonical form mismatch")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}

	plaintext := "Anna — product tinkerer"
	ct1, iv1, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct2, iv2, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ct1 == ct2 || iv1 == iv2 {
		t.Fatalf("repeated encryption must produce fresh ciphertext and nonce")
	}

	got, err := Decrypt(ct1, iv1, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("decrypted %q, want %q", got, plaintext)
	}

	wrongKey, _ := GenerateSymmetricKey()
	if _, err := Decrypt(ct1, iv1, wrongKey); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed with wrong key, got %v", err)
	}
	tampered := "A" + ct1[1:]
	if _, err := Decrypt(tampered, iv1, key); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed for tampered ciphertext, got %v", err)
	}
}

func TestDerivePreviewKey(t *testing.T) {
	seed := []byte(strings.Repeat("s", 32))
	k1, err := DerivePreviewKey(seed, "a1b2")
	if err != nil {
		t.Fatalf("DerivePreviewKey: %v", err)
	}
	k2, _ := DerivePreviewKey(seed, "a1b2")
	if string(k1) != string(k2) {
		t.Fatalf("derivation not deterministic for same seed and room")
	}
	k3, _ := DerivePreviewKey(seed, "ffff")
	if string(k1) == string(k3) {
		t.Fatalf("derivation not bound to room id")
	}
	if len(k1) != SymmetricKeySize {
		t.Fatalf("unexpected derived key length %d", len(k1))
	}
}

func TestGenerateRoomID(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		id, err := GenerateRoomID()
		if err != nil {
			t.Fatalf("GenerateRoomID: %v", err)
		}
		if !re.MatchString(id) {
			t.Fatalf("room id %q is not 32 lowercase hex chars", id)
		}
		if seen[id] {
			t.Fatalf("room id repeated")
		}
		seen[id] = true
	}
}

func BenchmarkSign(b *testing.B) {
	kp, _ := NewService().KeyPair()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Sign("benchmark payload", kp.Private); err != nil {
			b.Fatal(err)
		}
	}
}
