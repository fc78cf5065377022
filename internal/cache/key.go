package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key namespaces.
const (
	credentialKeyPrefix   = "cred:"
	vendorSecretKeyPrefix = "byok:"
	tenantTagPrefix       = "tenant:"
)

// CredentialKey returns the cache key for a credential hash.
func CredentialKey(hash string) string {
	return credentialKeyPrefix + hash
}

// VendorSecretKey returns the cache key for a tenant's vendor secret. Both
// parts may contain ':', so the tenant id is length-prefixed to keep
// distinct (tenant, vendor) pairs on distinct keys.
func VendorSecretKey(tenantID, vendor string) string {
	return vendorSecretKeyPrefix + strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" + vendor
}

// TenantTag returns the tag grouping every entry owned by a tenant.
func TenantTag(tenantID string) string {
	return tenantTagPrefix + SanitizeKey(tenantID)
}

// HashKey hashes a key to a fixed length.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// SanitizeKey removes or replaces characters that might cause issues in cache keys.
func SanitizeKey(key string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"\n", "",
		"\r", "",
		"\t", "",
	)
	return replacer.Replace(key)
}
