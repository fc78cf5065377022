package byok

import "errors"

var (
	// ErrSecretNotFound is returned when no active secret exists for a
	// tenant and vendor.
	ErrSecretNotFound = errors.New("vendor secret not found")

	// ErrUnknownVendor is reported by a strict registry for vendors without
	// a registered format.
	ErrUnknownVendor = errors.New("unknown vendor")

	errNotUTF8 = errors.New("plaintext is not valid UTF-8")
)
