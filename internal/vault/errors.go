package vault

import (
	"errors"
	"fmt"
	"net"
)

// Common errors for Vault operations.
var (
	// ErrVaultDisabled indicates Vault integration is disabled.
	ErrVaultDisabled = errors.New("vault: disabled")

	// ErrNotAuthenticated indicates the client is not authenticated.
	ErrNotAuthenticated = errors.New("vault: client not authenticated")

	// ErrAuthenticationFailed indicates authentication failed.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")

	// ErrSecretNotFound indicates the secret was not found.
	ErrSecretNotFound = errors.New("vault: secret not found")

	// ErrFieldNotFound indicates the secret exists but lacks the field.
	ErrFieldNotFound = errors.New("vault: field not found")

	// ErrInvalidPath indicates an invalid secret path.
	ErrInvalidPath = errors.New("vault: invalid secret path")

	// ErrClientClosed indicates the client was closed.
	ErrClientClosed = errors.New("vault: client closed")

	// ErrSealed indicates the server is sealed or not initialized.
	ErrSealed = errors.New("vault: sealed or uninitialized")
)

// VaultError represents a Vault-specific error with additional context.
type VaultError struct {
	Op   string // Operation that failed
	Path string // Secret path if applicable
	Err  error  // Underlying error
	Code int    // HTTP status code if applicable
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("vault %s on path %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *VaultError) Unwrap() error {
	return e.Err
}

// NewVaultError creates a new VaultError.
func NewVaultError(op, path string, err error) *VaultError {
	return &VaultError{Op: op, Path: path, Err: err}
}

// NewVaultErrorWithCode creates a new VaultError with an HTTP status code.
func NewVaultErrorWithCode(op, path string, err error, code int) *VaultError {
	return &VaultError{Op: op, Path: path, Err: err, Code: code}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) && (vaultErr.Code >= 500 || vaultErr.Code == 429) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsAuthError returns true if the error is an authentication error.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrAuthenticationFailed) {
		return true
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		return vaultErr.Code == 401 || vaultErr.Code == 403
	}

	return false
}
