package secure

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// devMasterDomain separates hashed-up development master secrets from any
// other SHA-256 use.
const devMasterDomain = "avakeys/dev-master/v1:"

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	size      int
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes. memguard
// wipes data after copying it into the enclave.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, util.NewCryptoError("seal", errEmptySecret)
	}
	size := len(data)
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
		size:    size,
	}, nil
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller must call Destroy on the returned LockedBuffer when done.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, util.NewCryptoError("open", errDestroyed)
	}

	lb, err := s.enclave.Open()
	if err != nil {
		return nil, util.NewCryptoError("open", err)
	}
	return lb, nil
}

// Size returns the length of the protected data.
func (s *SecureBuffer) Size() int {
	return s.size
}

// Destroy marks this SecureBuffer as destroyed and prevents further use.
// It is idempotent. The enclave ciphertext is left to the garbage
// collector; memguard.Purge wipes everything at exit.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}

// LoadMasterSecret validates raw and seals it into an enclave. raw is wiped.
//
// In the production profile a secret shorter than the minimum length is
// rejected. In development it is deterministically hashed up to the minimum
// length and an ERROR is logged, since the result is guessable.
func LoadMasterSecret(raw []byte, profile config.Profile, logger observability.Logger) (*SecureBuffer, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if len(raw) >= config.MinMasterSecretLength {
		return NewSecureBuffer(raw)
	}

	if profile == config.ProfileProduction {
		memguard.WipeBytes(raw)
		return nil, util.NewConfigError("security.masterSecret",
			"must be at least 32 bytes in production profile")
	}

	logger.Error("master secret missing or shorter than 32 bytes; deriving a padded development secret, unsafe for production",
		observability.Int("length", len(raw)),
		observability.Int("min_length", config.MinMasterSecretLength),
	)

	padded := hashUp(raw)
	memguard.WipeBytes(raw)
	return NewSecureBuffer(padded)
}

// hashUp stretches a short secret to at least MinMasterSecretLength bytes
// with a SHA-256 chain rendered as hex.
func hashUp(raw []byte) []byte {
	out := make([]byte, 0, 2*sha256.Size)
	block := sha256.Sum256(append([]byte(devMasterDomain), raw...))
	for len(out) < config.MinMasterSecretLength {
		out = hex.AppendEncode(out, block[:])
		block = sha256.Sum256(block[:])
	}
	return out
}
