package vault

import (
	"context"
	"errors"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avakeys/internal/config"
)

// ErrInvalidAuthConfig is returned when auth configuration is invalid.
var ErrInvalidAuthConfig = errors.New("invalid auth configuration")

// DefaultAppRoleMountPath is the default mount path for AppRole auth.
const DefaultAppRoleMountPath = "approle"

// AuthMethod defines the interface for Vault authentication methods.
type AuthMethod interface {
	// Authenticate authenticates with Vault and returns the auth secret.
	Authenticate(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error)

	// Name returns the name of the authentication method.
	Name() string
}

// TokenAuth implements token-based authentication for Vault.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates a new token authentication method.
func NewTokenAuth(token string) (*TokenAuth, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidAuthConfig)
	}
	return &TokenAuth{token: token}, nil
}

// Authenticate sets the token and verifies it by looking up self.
func (a *TokenAuth) Authenticate(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error) {
	client.SetToken(a.token)

	secret, err := client.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("token auth failed: %w", err)
	}
	return secret, nil
}

// Name implements AuthMethod.
func (a *TokenAuth) Name() string {
	return config.VaultAuthToken
}

// AppRoleAuth implements AppRole authentication for Vault.
type AppRoleAuth struct {
	roleID    string
	secretID  string
	mountPath string
}

// NewAppRoleAuth creates a new AppRole authentication method.
func NewAppRoleAuth(roleID, secretID, mountPath string) (*AppRoleAuth, error) {
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidAuthConfig)
	}
	if secretID == "" {
		return nil, fmt.Errorf("%w: secret_id is required", ErrInvalidAuthConfig)
	}
	if mountPath == "" {
		mountPath = DefaultAppRoleMountPath
	}
	return &AppRoleAuth{roleID: roleID, secretID: secretID, mountPath: mountPath}, nil
}

// Authenticate logs in and installs the issued client token.
func (a *AppRoleAuth) Authenticate(ctx context.Context, client *vaultapi.Client) (*vaultapi.Secret, error) {
	path := fmt.Sprintf("auth/%s/login", a.mountPath)
	data := map[string]interface{}{
		"role_id":   a.roleID,
		"secret_id": a.secretID,
	}

	secret, err := client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return nil, fmt.Errorf("approle auth failed: %w", err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, fmt.Errorf("approle auth failed: %w", ErrAuthenticationFailed)
	}

	client.SetToken(secret.Auth.ClientToken)
	return secret, nil
}

// Name implements AuthMethod.
func (a *AppRoleAuth) Name() string {
	return config.VaultAuthAppRole
}

// authMethodFromConfig builds the configured auth method.
func authMethodFromConfig(cfg config.VaultConfig) (AuthMethod, error) {
	switch cfg.AuthMethod {
	case config.VaultAuthToken, "":
		return NewTokenAuth(cfg.Token)
	case config.VaultAuthAppRole:
		return NewAppRoleAuth(cfg.RoleID, cfg.SecretID, "")
	default:
		return nil, fmt.Errorf("%w: unsupported auth method %q", ErrInvalidAuthConfig, cfg.AuthMethod)
	}
}
