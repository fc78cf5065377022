// Package credential issues, validates and revokes tenant API credentials.
//
// A credential is "als_" followed by 43 base64url characters encoding 32
// random bytes. Only a salted PBKDF2-HMAC-SHA256 digest of it is stored.
//
// Validation is cache-aside:
//
//	raw → shape check → hash → cache "cred:<hash>"
//	    hit  → tenant snapshot, last-used refreshed in the background
//	    miss → store lookup → last-used refreshed → cache populate → tenant
//
// Every rejected credential maps to ErrInvalidCredential so callers cannot
// tell a malformed key from an unknown, revoked or suspended one. Store
// failures are returned as *util.DependencyError and never authenticate.
//
// Revocation deactivates the credential and evicts every cache entry tagged
// with the owning tenant. If eviction fails the stale window is bounded by
// the cache TTL.
package credential
