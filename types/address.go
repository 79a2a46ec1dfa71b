package types

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AddressFromPubKey derives an RTC wallet address from a hex Ed25519 public key:
// "RTC" + first 40 hex chars of SHA-256(pubkey).
func AddressFromPubKey(publicKeyHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return "", ErrInvalidSignature.Wrap("malformed public key")
	}
	sum := sha256.Sum256(raw)
	return "RTC" + hex.EncodeToString(sum[:])[:40], nil
}

// VerifyEd25519 checks a hex signature over message with a hex public key.
func VerifyEd25519(publicKeyHex string, message []byte, signatureHex string) bool {
	pub, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}
