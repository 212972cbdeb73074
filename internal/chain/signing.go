package chain

import "crypto/ed25519"

// Sign signs the canonical hash of r (computed with the signature field
// implicitly cleared, since CanonicalHash never reads it) using priv, and
// returns a copy of r with Signature and Signer populated.
func Sign(r MoveRecord, priv ed25519.PrivateKey) MoveRecord {
	hash := CanonicalHash(r)
	signed := r
	signed.Signature = ed25519.Sign(priv, hash[:])
	signed.Signer = append([]byte(nil), priv.Public().(ed25519.PublicKey)...)
	return signed
}

// VerifySignature reports whether r's signature verifies against its
// declared signer over the canonical hash of r with the signature field
// cleared (spec I3). A record with no signature verifies as false; callers
// that want to accept unsigned records in relaxed mode must check IsSigned
// first.
func VerifySignature(r MoveRecord) bool {
	if !r.IsSigned() {
		return false
	}
	if len(r.Signer) != ed25519.PublicKeySize {
		return false
	}
	unsigned := r
	unsigned.Signature = nil
	hash := CanonicalHash(unsigned)
	return ed25519.Verify(ed25519.PublicKey(r.Signer), hash[:], r.Signature)
}
