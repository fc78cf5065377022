// Package vault provides a small HashiCorp Vault client used to source
// bootstrap secrets: the master secret, the credential hashing salt and the
// redis password.
//
// Only the KV secrets engine is used. Both KV v2 (mount/data/path) and KV v1
// layouts are read transparently.
//
// # Authentication Methods
//
// Token Authentication:
//
//	cfg := config.VaultConfig{
//	    Enabled:    true,
//	    Address:    "https://vault.example.com:8200",
//	    AuthMethod: config.VaultAuthToken,
//	    Token:      "s.xxxxx",
//	}
//
// AppRole Authentication:
//
//	cfg := config.VaultConfig{
//	    Enabled:    true,
//	    Address:    "https://vault.example.com:8200",
//	    AuthMethod: config.VaultAuthAppRole,
//	    RoleID:     "role-id",
//	    SecretID:   "secret-id",
//	}
//
// # Paths
//
// A secret reference has the form "mount/path[#field]". A reference without
// a slash is resolved against the configured KV mount.
//
//	client, err := vault.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	if err := client.Authenticate(ctx); err != nil {
//	    return err
//	}
//	master, err := client.ReadField(ctx, "secret/avakeys/master", "value")
package vault
