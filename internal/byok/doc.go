// Package byok stores tenant-supplied vendor secrets encrypted at rest.
//
// Each secret is sealed with AES-256-CBC under a key derived from the
// master secret and the tenant id, so a blob read back for another tenant
// never yields the original plaintext. Ciphertext, never plaintext, is
// cached under "byok:<tenant>:<vendor>" and tagged with the tenant so a
// credential revocation also drops it.
//
// Secrets are checked against a per-vendor format Registry before any
// encryption. Vendors without a registered format are accepted with a
// warning unless the registry is strict.
package byok
