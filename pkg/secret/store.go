// Package secret provides the key-value secret stores used to persist the
// audit signing key and the saved API password.
package secret

import (
	"context"
	"errors"
)

// ErrPassphraseRequired is returned when an encrypted store is opened without a passphrase.
var ErrPassphraseRequired = errors.New("secret store passphrase is required")

// Store is an opaque service/account keyed secret store. Writes are
// last-write-wins.
type Store interface {
	Get(ctx context.Context, service, account string) ([]byte, bool, error)
	Set(ctx context.Context, service, account string, value []byte) error
	Delete(ctx context.Context, service, account string) error
}

// SwapStore is implemented by stores that can create a value atomically.
type SwapStore interface {
	Store
	// SetIfAbsent stores value only if nothing is stored under
	// service/account and reports whether it did.
	SetIfAbsent(ctx context.Context, service, account string, value []byte) (bool, error)
}

func key(service, account string) string {
	return service + "/" + account
}
