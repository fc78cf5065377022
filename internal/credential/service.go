package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/retry"
	"github.com/vyrodovalexey/avakeys/internal/store"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// issueAttempts is the number of fresh credentials tried when the store
// reports a collision.
const issueAttempts = 3

// Service issues, revokes and lists credentials.
type Service struct {
	store        store.Store
	cache        cache.TaggedCache
	hasher       *Hasher
	logger       observability.Logger
	metrics      *Metrics
	generate     func() (string, error)
	now          func() time.Time
	cacheTimeout time.Duration
}

// ServiceOption is a functional option for the service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceMetrics sets the metrics.
func WithServiceMetrics(metrics *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithGenerator overrides credential generation.
func WithGenerator(fn func() (string, error)) ServiceOption {
	return func(s *Service) {
		s.generate = fn
	}
}

// WithServiceCacheTimeout bounds the post-revocation cache eviction.
func WithServiceCacheTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.cacheTimeout = d
	}
}

// NewService creates a Service. A nil cache skips eviction.
func NewService(st store.Store, c cache.TaggedCache, hasher *Hasher, opts ...ServiceOption) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}

	s := &Service{
		store:        st,
		cache:        c,
		hasher:       hasher,
		logger:       observability.NopLogger(),
		generate:     Generate,
		now:          time.Now,
		cacheTimeout: config.DefaultCacheOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("avakeys")
	}
	s.logger = s.logger.With(observability.String("component", "credential_service"))

	return s, nil
}

// Issue creates a credential for tenantID and returns it with the raw
// secret. The raw secret is not recoverable afterwards.
func (s *Service) Issue(ctx context.Context, tenantID, label string) (*store.Credential, string, error) {
	if err := util.ValidateIdentifier("tenant_id", tenantID); err != nil {
		return nil, "", err
	}
	if err := util.ValidateLabel(label); err != nil {
		return nil, "", err
	}

	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, "", fmt.Errorf("tenant %q: %w", tenantID, err)
	}

	var (
		cred *store.Credential
		raw  string
	)
	err := retry.Do(ctx, &retry.Config{MaxRetries: issueAttempts - 1, NoBackoff: true}, func() error {
		var genErr error
		raw, genErr = s.generate()
		if genErr != nil {
			return util.NewCryptoError("generate", genErr)
		}
		hash, hashErr := s.hasher.Hash(raw)
		if hashErr != nil {
			return hashErr
		}

		cred = &store.Credential{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Hash:      hash,
			Label:     label,
			Active:    true,
			CreatedAt: s.now().UTC(),
		}
		return s.store.InsertCredential(ctx, cred)
	}, &retry.Options{
		Operation:   "credential_issue",
		ShouldRetry: isCollision,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			s.logger.Warn("credential collision, regenerating",
				observability.Int("attempt", attempt),
				observability.Error(err))
		},
	})
	if err != nil {
		return nil, "", err
	}

	s.metrics.RecordIssued()
	s.logger.Info("credential issued",
		observability.String("tenant_id", tenantID),
		observability.String("credential_id", cred.ID))

	return cred, raw, nil
}

// isCollision reports a duplicate hash or id, which fresh randomness fixes.
func isCollision(err error) bool {
	var ie *util.IntegrityError
	if !errors.As(err, &ie) {
		return false
	}
	return ie.Constraint != store.ConstraintCredentialFK
}

// Revoke deactivates the credential and evicts the owning tenant's cache
// entries. It reports false when the credential is unknown or already
// inactive. An eviction failure is logged, not returned.
func (s *Service) Revoke(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, util.NewFormatError("credential_id", "must not be empty")
	}

	cred, err := s.store.GetCredential(ctx, id)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	changed, err := s.store.DeactivateCredential(ctx, id)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.metrics.RecordRevoked()
	s.evictTenant(ctx, cred.TenantID)

	s.logger.Info("credential revoked",
		observability.String("tenant_id", cred.TenantID),
		observability.String("credential_id", id))
	return true, nil
}

func (s *Service) evictTenant(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()

	n, err := s.cache.InvalidateTag(cctx, cache.TenantTag(tenantID))
	if err != nil {
		s.metrics.RecordEvictionFailure()
		s.logger.Error("cache eviction after revocation failed; stale entries expire with the cache TTL",
			observability.String("tenant_id", tenantID),
			observability.Error(err))
		return
	}
	s.logger.Debug("tenant cache entries evicted",
		observability.String("tenant_id", tenantID),
		observability.Int("evicted", n))
}

// List returns a tenant's credentials without their hashes.
func (s *Service) List(ctx context.Context, tenantID string) ([]*store.Credential, error) {
	if err := util.ValidateIdentifier("tenant_id", tenantID); err != nil {
		return nil, err
	}
	creds, err := s.store.ListCredentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, c := range creds {
		c.Hash = ""
	}
	return creds, nil
}
