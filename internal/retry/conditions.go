package retry

import (
	"context"
	"errors"
	"net"

	"github.com/vyrodovalexey/avakeys/internal/util"
)

// IsTransient reports whether err is worth retrying against a remote
// dependency. Cancellation, malformed input and crypto failures are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, util.ErrFormat) || errors.Is(err, util.ErrCrypto) ||
		errors.Is(err, util.ErrIntegrity) || errors.Is(err, util.ErrNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, util.ErrDependency)
}

// OnlyIntegrity retries only on store constraint violations.
func OnlyIntegrity(err error) bool {
	return errors.Is(err, util.ErrIntegrity)
}
