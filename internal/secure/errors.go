package secure

import "errors"

var (
	errEmptySecret   = errors.New("secret is empty")
	errDestroyed     = errors.New("buffer destroyed")
	errKeySize       = errors.New("key must be 32 bytes")
	errShortInput    = errors.New("ciphertext shorter than one block plus iv")
	errUnaligned     = errors.New("ciphertext is not a multiple of the block size")
	errPadding       = errors.New("invalid padding")
	errEmptyTenantID = errors.New("tenant id is empty")
)
