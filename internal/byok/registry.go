package byok

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// FormatValidator checks that a secret looks like a vendor's key.
type FormatValidator interface {
	Validate(secret string) error
}

// RegexValidator matches secrets against a pattern.
type RegexValidator struct {
	pattern *regexp.Regexp
	hint    string
}

// NewRegexValidator compiles pattern. hint describes the expected shape in
// error messages and must not echo the secret.
func NewRegexValidator(pattern, hint string) (*RegexValidator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile vendor pattern: %w", err)
	}
	return &RegexValidator{pattern: re, hint: hint}, nil
}

// MustRegexValidator is like NewRegexValidator but panics on a bad pattern.
func MustRegexValidator(pattern, hint string) *RegexValidator {
	v, err := NewRegexValidator(pattern, hint)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate implements FormatValidator.
func (v *RegexValidator) Validate(secret string) error {
	if !v.pattern.MatchString(secret) {
		return util.NewFormatError("vendor_secret", "expected "+v.hint)
	}
	return nil
}

// Policy decides what happens to vendors without a registered format.
type Policy int

const (
	// PolicyPermissive accepts unknown vendors and logs a warning.
	PolicyPermissive Policy = iota

	// PolicyStrict rejects unknown vendors.
	PolicyStrict
)

// String returns the policy name.
func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "permissive"
}

// builtinFormats are the vendor key shapes known at build time.
var builtinFormats = map[string]*RegexValidator{
	"openai":     MustRegexValidator(`^sk-(?:proj-|svcacct-|admin-)?[A-Za-z0-9_-]{20,}$`, `"sk-" followed by at least 20 characters`),
	"anthropic":  MustRegexValidator(`^sk-ant-[A-Za-z0-9_-]{20,}$`, `"sk-ant-" followed by at least 20 characters`),
	"google":     MustRegexValidator(`^AIza[0-9A-Za-z_-]{35}$`, `"AIza" followed by 35 characters`),
	"groq":       MustRegexValidator(`^gsk_[A-Za-z0-9]{20,}$`, `"gsk_" followed by at least 20 alphanumerics`),
	"mistral":    MustRegexValidator(`^[A-Za-z0-9]{32}$`, "32 alphanumerics"),
	"cohere":     MustRegexValidator(`^[A-Za-z0-9]{40}$`, "40 alphanumerics"),
	"together":   MustRegexValidator(`^(?:tgp_v1_[A-Za-z0-9_-]{20,}|[a-f0-9]{64})$`, `"tgp_v1_" key or 64 hex characters`),
	"deepseek":   MustRegexValidator(`^sk-[a-f0-9]{32}$`, `"sk-" followed by 32 hex characters`),
	"xai":        MustRegexValidator(`^xai-[A-Za-z0-9]{20,}$`, `"xai-" followed by at least 20 alphanumerics`),
	"openrouter": MustRegexValidator(`^sk-or-v1-[a-f0-9]{64}$`, `"sk-or-v1-" followed by 64 hex characters`),
}

// Registry maps vendor names to format validators.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]FormatValidator
	policy     Policy
	logger     observability.Logger
}

// RegistryOption is a functional option for the registry.
type RegistryOption func(*Registry)

// WithPolicy sets the unknown-vendor policy.
func WithPolicy(p Policy) RegistryOption {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithRegistryLogger sets the logger used for unknown-vendor warnings.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		validators: make(map[string]FormatValidator),
		policy:     PolicyPermissive,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry creates a registry holding the built-in vendor formats.
func DefaultRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	for vendor, v := range builtinFormats {
		r.validators[vendor] = v
	}
	return r
}

// Register adds or replaces the validator for vendor.
func (r *Registry) Register(vendor string, v FormatValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[NormalizeVendor(vendor)] = v
}

// Lookup returns the validator for vendor.
func (r *Registry) Lookup(vendor string) (FormatValidator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[NormalizeVendor(vendor)]
	return v, ok
}

// Vendors returns the registered vendor names in order.
func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vendors := make([]string, 0, len(r.validators))
	for name := range r.validators {
		vendors = append(vendors, name)
	}
	sort.Strings(vendors)
	return vendors
}

// Policy returns the unknown-vendor policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Check validates secret for vendor. A known vendor's mismatch is a
// *util.FormatError. An unknown vendor passes under the permissive policy.
func (r *Registry) Check(vendor, secret string) error {
	v, ok := r.Lookup(vendor)
	if ok {
		if err := v.Validate(secret); err != nil {
			return fmt.Errorf("%s key: %w", vendor, err)
		}
		return nil
	}

	if r.policy == PolicyStrict {
		return fmt.Errorf("%w %q: %w", ErrUnknownVendor, vendor, util.NewFormatError("vendor", "no registered format"))
	}

	r.logger.Warn("no format registered for vendor; accepting secret unchecked",
		observability.String("vendor", vendor))
	return nil
}

// NormalizeVendor lowercases and trims a vendor name.
func NormalizeVendor(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
