// Package audit keeps the in-memory record of destructive actions and signs
// it into a verifiable envelope.
package audit

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"batch-delete/pkg/model"
	"batch-delete/pkg/secret"
)

// Secret store coordinates of the signing key.
const (
	KeyService = "batch-delete.audit"
	KeyAccount = "privateKey"
)

// keyMu serializes load-or-create across every Signer in the process.
var keyMu sync.Mutex

// Signer buffers audit entries and signs them with a persistent P-256 key.
type Signer struct {
	Log

	store   secret.Store
	service string
	account string
	log     *slog.Logger

	mu  sync.Mutex
	key *ecdsa.PrivateKey
}

// NewSigner returns a Signer persisting its key in store.
func NewSigner(store secret.Store, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{store: store, service: KeyService, account: KeyAccount, log: logger}
}

// Export signs the buffered entries. The buffer is left intact.
func (s *Signer) Export(ctx context.Context) (model.SignedAuditEnvelope, error) {
	entries := s.Entries()
	if len(entries) == 0 {
		return model.SignedAuditEnvelope{}, ErrEmptyLog
	}
	return s.Sign(ctx, entries)
}

// Sign produces an envelope over entries without touching the buffer.
func (s *Signer) Sign(ctx context.Context, entries []model.AuditEntry) (model.SignedAuditEnvelope, error) {
	if len(entries) == 0 {
		return model.SignedAuditEnvelope{}, ErrEmptyLog
	}
	payload, err := Canonicalize(entries)
	if err != nil {
		return model.SignedAuditEnvelope{}, fmt.Errorf("canonicalize audit entries: %w", err)
	}
	key, err := s.Key(ctx)
	if err != nil {
		return model.SignedAuditEnvelope{}, err
	}
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return model.SignedAuditEnvelope{}, fmt.Errorf("sign audit entries: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return model.SignedAuditEnvelope{}, fmt.Errorf("encode public key: %w", err)
	}
	return model.SignedAuditEnvelope{
		Entries:         entries,
		SignatureBase64: base64.StdEncoding.EncodeToString(sig),
		PublicKeyBase64: base64.StdEncoding.EncodeToString(pub),
		Algorithm:       model.AlgorithmP256SHA256,
	}, nil
}

// Key returns the signing key, loading it from the secret store or creating
// and persisting a new one on first use.
func (s *Signer) Key(ctx context.Context) (*ecdsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}
	keyMu.Lock()
	defer keyMu.Unlock()

	raw, ok, err := s.store.Get(ctx, s.service, s.account)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	if ok {
		key, err := decodeKey(raw)
		if err != nil {
			// replacing it is left to an explicit Rotate
			return nil, &StorageError{Op: "decode", Err: err}
		}
		s.key = key
		return key, nil
	}

	key, encoded, err := generateKey()
	if err != nil {
		return nil, err
	}
	if swap, isSwap := s.store.(secret.SwapStore); isSwap {
		stored, err := swap.SetIfAbsent(ctx, s.service, s.account, encoded)
		if err != nil {
			return nil, &StorageError{Op: "persist", Err: err}
		}
		if !stored {
			// Another writer created the key first; use theirs.
			raw, found, err := s.store.Get(ctx, s.service, s.account)
			if err != nil || !found {
				return nil, &StorageError{Op: "reload", Err: fmt.Errorf("key vanished after concurrent create: %v", err)}
			}
			if key, err = decodeKey(raw); err != nil {
				return nil, &StorageError{Op: "reload", Err: err}
			}
		}
	} else if err := s.store.Set(ctx, s.service, s.account, encoded); err != nil {
		return nil, &StorageError{Op: "persist", Err: err}
	}
	s.log.Info("audit signing key ready", "service", s.service)
	s.key = key
	return key, nil
}

// Rotate replaces the persisted key with a freshly generated one.
func (s *Signer) Rotate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keyMu.Lock()
	defer keyMu.Unlock()
	key, encoded, err := generateKey()
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.service, s.account, encoded); err != nil {
		return &StorageError{Op: "persist", Err: err}
	}
	s.key = key
	s.log.Info("audit signing key rotated", "service", s.service)
	return nil
}

// PublicKeyBase64 returns the base-64 DER public key of the signing key.
func (s *Signer) PublicKeyBase64(ctx context.Context) (string, error) {
	key, err := s.Key(ctx)
	if err != nil {
		return "", err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

func generateKey() (*ecdsa.PrivateKey, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate signing key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("encode signing key: %w", err)
	}
	return key, []byte(base64.StdEncoding.EncodeToString(der)), nil
}

func decodeKey(raw []byte) (*ecdsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing key is not a P-256 ECDSA key")
	}
	return key, nil
}
