package vault

import (
	"fmt"
	"strings"
)

// SecretRef identifies a single field of a KV secret.
type SecretRef struct {
	Mount string
	Path  string
	Field string
}

// ParseSecretRef parses "mount/path[#field]". A reference without a slash
// is resolved against defaultMount. defaultField is used when no field is
// given; Field may be empty when the whole secret is read.
func ParseSecretRef(ref, defaultMount, defaultField string) (SecretRef, error) {
	ref = strings.TrimSpace(strings.Trim(ref, "/"))
	if ref == "" {
		return SecretRef{}, fmt.Errorf("%w: empty reference", ErrInvalidPath)
	}

	field := defaultField
	if i := strings.LastIndex(ref, "#"); i >= 0 {
		field = ref[i+1:]
		ref = ref[:i]
	}
	if strings.Contains(ref, "..") {
		return SecretRef{}, fmt.Errorf("%w: %q", ErrInvalidPath, ref)
	}

	mount, path, ok := strings.Cut(ref, "/")
	if !ok {
		if defaultMount == "" {
			return SecretRef{}, fmt.Errorf("%w: %q has no mount", ErrInvalidPath, ref)
		}
		mount, path = defaultMount, ref
	}
	if path == "" {
		return SecretRef{}, fmt.Errorf("%w: %q has no path", ErrInvalidPath, ref)
	}

	return SecretRef{Mount: mount, Path: path, Field: field}, nil
}

// kv2DataPath returns the KV v2 data path.
func (r SecretRef) kv2DataPath() string {
	return r.Mount + "/data/" + r.Path
}

// kv1Path returns the KV v1 path.
func (r SecretRef) kv1Path() string {
	return r.Mount + "/" + r.Path
}
