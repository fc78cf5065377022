// Package util provides error kinds and validation helpers shared by the
// credential, vendor-key, store and cache packages.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., DependencyError, CryptoError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// The error kinds map onto how the API boundary must react:
//
//   - FormatError: malformed input, rejected before any crypto work.
//   - ErrNotFound: an expected outcome, not a failure.
//   - IntegrityError: a store constraint was violated (duplicate hash).
//   - CryptoError: derivation, encryption or decryption failed. Never
//     downgraded to not-found.
//   - DependencyError: the store or cache is unavailable or timed out.
//
// # Validation
//
// Input validation helpers for identifiers and durations:
//
//	err := util.ValidateIdentifier("tenant_id", tenantID)
//	err := util.ValidatePositiveDuration(ttl)
package util
