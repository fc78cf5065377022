package util

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// identifierRegex bounds tenant ids, vendor names and labels that end up in
// cache keys and log fields.
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// ValidateIdentifier validates an opaque identifier such as a tenant id.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return NewFormatError(field, "must not be empty")
	}
	if !identifierRegex.MatchString(value) {
		return NewFormatError(field, "contains unsupported characters or is too long")
	}
	return nil
}

// ValidateLabel validates a human-readable credential label.
func ValidateLabel(label string) error {
	if len(label) > 128 {
		return NewFormatError("label", fmt.Sprintf("too long: %d characters (max 128)", len(label)))
	}
	for _, c := range label {
		if c < 0x20 || c == 0x7f {
			return NewFormatError("label", "contains control characters")
		}
	}
	return nil
}

// ValidateNonEmpty validates that a string is not empty.
func ValidateNonEmpty(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

// ValidateDuration validates a duration is not negative.
func ValidateDuration(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("duration cannot be negative: %v", d)
	}
	return nil
}

// ValidatePositiveDuration validates a duration is strictly positive.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive: %v", d)
	}
	return nil
}
