package events

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

// Hasher computes the identity hash of an event's canonical encoding.
// Cryptographic primitives are an external capability (spec.md §1); the
// pipeline depends only on this interface.
type Hasher interface {
	Hash(canonical []byte) ids.ID
}

// Signer produces a signature over an event's canonical encoding on behalf
// of a single node identity, used by the event-creation stage.
type Signer interface {
	NodeID() ids.NodeID
	Sign(canonical []byte) ([]byte, error)
}

// Verifier checks a signature over a canonical encoding against a creator's
// public key, used by the signature-validator stage.
type Verifier interface {
	Verify(creator ids.NodeID, publicKey, canonical, signature []byte) bool
}

// Sha256Hasher is the default Hasher: it is not a cryptographic identity
// commitment on its own (no domain separation beyond the canonical
// encoding), sufficient for the pipeline's purposes where the real
// commitment scheme lives behind the Hasher capability boundary.
type Sha256Hasher struct{}

// Hash implements Hasher.
func (Sha256Hasher) Hash(canonical []byte) ids.ID {
	return ids.ID(sha256.Sum256(canonical))
}
