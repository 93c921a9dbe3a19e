package exchange

import (
	"encoding/json"

	"github.com/twinlink/twinlink/twinlink/identity"
)

// Entry is the value type of the replicated map, keyed by twin id. It never
// carries raw profile data or a raw embedding; the hash is the only
// embedding-derived value transmitted.
type Entry struct {
	TwinID           string `json:"twinId"`
	EmbeddingHash    string `json:"embeddingHash"`
	Signature        string `json:"signature"`
	PublicKey        string `json:"publicKey"`
	EncryptedPreview string `json:"encryptedPreview"`
	PreviewIV        string `json:"previewIv"`
}

func (e Entry) valid() bool {
	return e.TwinID != "" && e.EmbeddingHash != "" && e.Signature != "" && e.PublicKey != ""
}

func decodeEntry(raw []byte) (Entry, bool) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	if !e.valid() {
		return Entry{}, false
	}
	return e, true
}

// VerifyEntry checks the entry's signature over its embedding hash under
// the entry's own public key. It fails closed: any decoding or cryptographic
// error yields false, never an error — a hostile or buggy peer must not be
// able to crash another peer's session.
func VerifyEntry(e Entry) bool {
	pub, err := identity.ImportPublicKey(e.PublicKey)
	if err != nil {
		return false
	}
	return identity.Verify(e.EmbeddingHash, e.Signature, pub)
}

// preview is the minimal profile excerpt carried encrypted in an entry:
// name and headline only, never skills, interests or the embedding.
type preview struct {
	Name     string `json:"name"`
	Headline string `json:"headline,omitempty"`
}
