package storage

import "errors"

var (
	// ErrEncryptionDisabled is returned by sealing helpers when no key was configured
	ErrEncryptionDisabled = errors.New("credential encryption is not configured")

	// ErrNotSealed is returned when a value lacks the sealed-value prefix
	ErrNotSealed = errors.New("value is not sealed")
)
