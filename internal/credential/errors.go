package credential

import "errors"

var (
	// ErrInvalidCredential is returned for every credential that does not
	// authenticate, whatever the reason.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrEmptyCredential is returned when hashing an empty credential.
	ErrEmptyCredential = errors.New("credential is empty")
)
