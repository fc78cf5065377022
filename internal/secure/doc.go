// Package secure holds the cryptographic core: the master secret kept in a
// memguard enclave, per-tenant key derivation and the AES-256-CBC envelope
// used for vendor secrets at rest.
//
// # Master secret
//
// The master secret is copied into an encrypted memguard enclave and only
// opened for the duration of a key derivation:
//
//	master, err := secure.LoadMasterSecret(raw, cfg.Profile, logger)
//	if err != nil {
//	    return err
//	}
//	defer master.Destroy()
//
// # Tenant keys
//
// A Deriver turns the master secret and a tenant id into a 32-byte AES key
// with PBKDF2-HMAC-SHA256. Derived keys are memoized in enclaves as well:
//
//	deriver, err := secure.NewDeriver(master, secure.WithIterations(100_000))
//	env := secure.NewEnvelope(deriver)
//	blob, err := env.Seal("acme", []byte("sk-..."))
//	plain, err := env.Open("acme", blob)
//
// # Platform Behavior
//
// memguard locks enclave memory where RLIMIT_MEMLOCK allows it and falls
// back to ordinary memory otherwise. Call memguard.Purge at process exit to
// wipe every buffer.
package secure
