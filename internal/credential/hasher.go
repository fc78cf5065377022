package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// hashSize is the PBKDF2 output length in bytes.
const hashSize = 32

// generatedSaltSize is the size of a salt generated when none is configured.
const generatedSaltSize = 32

// Hasher derives the stored digest of a credential.
type Hasher struct {
	salt       []byte
	iterations int
}

// NewHasher creates a Hasher. iterations below config.MinIterations are
// rejected.
func NewHasher(salt []byte, iterations int) (*Hasher, error) {
	if len(salt) == 0 {
		return nil, util.NewConfigError("security.hashSalt", "salt is required")
	}
	if iterations < config.MinIterations {
		return nil, util.NewConfigError("security.hashIterations",
			fmt.Sprintf("must be at least %d", config.MinIterations))
	}
	return &Hasher{salt: append([]byte(nil), salt...), iterations: iterations}, nil
}

// Hash returns the lowercase hex PBKDF2-HMAC-SHA256 digest of raw.
func (h *Hasher) Hash(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyCredential
	}
	return hex.EncodeToString(pbkdf2.Key([]byte(raw), h.salt, h.iterations, hashSize, sha256.New)), nil
}

// ResolveSalt returns the configured salt. When none is configured, the
// production profile fails and development generates a random salt that
// invalidates every stored credential on restart.
func ResolveSalt(configured string, profile config.Profile, logger observability.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	if profile == config.ProfileProduction {
		return nil, util.NewConfigError("security.hashSalt", "required in production profile")
	}

	salt := make([]byte, generatedSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, util.NewCryptoError("generate_salt", err)
	}

	if logger != nil {
		logger.Warn("credential hash salt not configured; using a random salt, credentials will not survive a restart")
	}
	return salt, nil
}
