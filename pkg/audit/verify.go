package audit

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"batch-delete/pkg/model"
)

// Verify checks that env's signature covers the canonical encoding of its
// entries. Any edit, removal or re-ordering of entries fails verification.
func Verify(env model.SignedAuditEnvelope) error {
	if env.Algorithm != model.AlgorithmP256SHA256 {
		return fmt.Errorf("unsupported algorithm %q", env.Algorithm)
	}
	pub, err := ParsePublicKey(env.PublicKeyBase64)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(env.SignatureBase64)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	payload, err := Canonicalize(env.Entries)
	if err != nil {
		return fmt.Errorf("canonicalize audit entries: %w", err)
	}
	return VerifyPayload(pub, payload, sig)
}

// VerifyPayload checks a DER signature over the SHA-256 digest of payload.
func VerifyPayload(pub *ecdsa.PublicKey, payload, sig []byte) error {
	digest := sha256.Sum256(payload)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return ErrBadSignature
	}
	return nil
}

// ParsePublicKey decodes a base-64 DER (SubjectPublicKeyInfo) P-256 key.
func ParsePublicKey(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("public key is not a P-256 ECDSA key")
	}
	return pub, nil
}
