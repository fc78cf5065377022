package util

import (
	"context"
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrFormat        = errors.New("malformed input")
	ErrNotFound      = errors.New("not found")
	ErrIntegrity     = errors.New("integrity constraint violated")
	ErrCrypto        = errors.New("cryptographic operation failed")
	ErrDependency    = errors.New("dependency unavailable")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// FormatError reports input that was rejected before any cryptographic work.
type FormatError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

// Is checks if the error matches the target.
func (e *FormatError) Is(target error) bool {
	if target == ErrFormat {
		return true
	}
	_, ok := target.(*FormatError)
	return ok
}

// NewFormatError creates a new FormatError.
func NewFormatError(field, message string) *FormatError {
	return &FormatError{Field: field, Message: message}
}

// IntegrityError represents a store constraint violation.
type IntegrityError struct {
	Constraint string
	Cause      error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("integrity violation on %s: %v", e.Constraint, e.Cause)
	}
	return "integrity violation on " + e.Constraint
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *IntegrityError) Is(target error) bool {
	if target == ErrIntegrity {
		return true
	}
	_, ok := target.(*IntegrityError)
	return ok
}

// NewIntegrityError creates a new IntegrityError.
func NewIntegrityError(constraint string, cause error) *IntegrityError {
	return &IntegrityError{Constraint: constraint, Cause: cause}
}

// CryptoError represents a key derivation, encryption or decryption failure.
type CryptoError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *CryptoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crypto %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("crypto %s failed", e.Op)
}

// Unwrap returns the underlying error.
func (e *CryptoError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *CryptoError) Is(target error) bool {
	if target == ErrCrypto {
		return true
	}
	_, ok := target.(*CryptoError)
	return ok
}

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, cause error) *CryptoError {
	return &CryptoError{Op: op, Cause: cause}
}

// DependencyError represents a store or cache failure, including timeouts
// and an open circuit breaker.
type DependencyError struct {
	Dependency string
	Op         string
	Cause      error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Dependency, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s %s failed", e.Dependency, e.Op)
}

// Unwrap returns the underlying error.
func (e *DependencyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *DependencyError) Is(target error) bool {
	if target == ErrDependency {
		return true
	}
	_, ok := target.(*DependencyError)
	return ok
}

// NewDependencyError creates a new DependencyError.
func NewDependencyError(dependency, op string, cause error) *DependencyError {
	return &DependencyError{Dependency: dependency, Op: op, Cause: cause}
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
