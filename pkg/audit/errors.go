package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLog is returned by Export when no entries are buffered.
	ErrEmptyLog = errors.New("audit log is empty")
	// ErrMissingID is returned by Append for an entry without a device id.
	ErrMissingID = errors.New("audit entry has no id")
	// ErrBadSignature is returned by Verify when the envelope does not verify.
	ErrBadSignature = errors.New("audit signature does not verify")
)

// StorageError reports a secret store failure while loading or persisting
// the signing key. The key is not cached, so the next export retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("signing key %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
