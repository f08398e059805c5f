package settings

import (
	"fmt"

	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/crypto"
	"github.com/Wynand91/fedauth/internal/domain"
)

// Canonical setting names. Handlers and the authenticator ask for these;
// the resolver maps them onto provider record fields and process config.
const (
	AuthorizationEndpoint = "OIDC_OP_AUTHORIZATION_ENDPOINT"
	TokenEndpoint         = "OIDC_OP_TOKEN_ENDPOINT"
	UserEndpoint          = "OIDC_OP_USER_ENDPOINT"
	JWKSEndpoint          = "OIDC_OP_JWKS_ENDPOINT"
	ClientID              = "OIDC_RP_CLIENT_ID"
	ClientSecret          = "OIDC_RP_CLIENT_SECRET"
	SignAlgo              = "OIDC_RP_SIGN_ALGO"
	Scopes                = "OIDC_RP_SCOPES"
	IDPSignKey            = "OIDC_RP_IDP_SIGN_KEY"
	CallbackURL           = "OIDC_CALLBACK_URL"
)

// fieldNames translates canonical setting names to provider record fields.
var fieldNames = map[string]string{
	AuthorizationEndpoint: "auth_endpoint",
	TokenEndpoint:         "token_endpoint",
	UserEndpoint:          "user_endpoint",
	JWKSEndpoint:          "jwks_endpoint",
	ClientID:              "client_id",
	SignAlgo:              "sign_algo",
	Scopes:                "scopes",
}

// ConfigError reports a setting that resolved nowhere: not on the tenant
// record, not in process config, and no default supplied. It surfaces as an
// internal error, never as a user-facing authentication failure.
type ConfigError struct {
	Setting string
	Tenant  string
}

func (e *ConfigError) Error() string {
	if e.Tenant == "" {
		return fmt.Sprintf("setting %s is not configured", e.Setting)
	}
	return fmt.Sprintf("setting %s is not configured for tenant %q", e.Setting, e.Tenant)
}

// Resolver resolves per-tenant OIDC settings. Order: provider record field,
// then process config, then the caller's default. A miss at every level is a
// ConfigError.
type Resolver struct {
	cfg    config.Config
	cipher *crypto.Cipher
}

// NewResolver constructs a settings resolver.
func NewResolver(cfg config.Config, cipher *crypto.Cipher) *Resolver {
	return &Resolver{cfg: cfg, cipher: cipher}
}

// Resolve returns the value of a required setting for the given tenant.
// provider may be nil for flows with no tenant context.
func (r *Resolver) Resolve(provider *domain.ProviderConfig, tenant, name string) (string, error) {
	return r.resolve(provider, tenant, name, "", false)
}

// ResolveDefault is Resolve with a fallback value instead of a ConfigError.
func (r *Resolver) ResolveDefault(provider *domain.ProviderConfig, tenant, name, def string) (string, error) {
	return r.resolve(provider, tenant, name, def, true)
}

func (r *Resolver) resolve(provider *domain.ProviderConfig, tenant, name, def string, hasDefault bool) (string, error) {
	if name == ClientSecret {
		return r.clientSecret(provider, tenant, def, hasDefault)
	}
	if provider != nil {
		if field, ok := fieldNames[name]; ok {
			if value, ok := provider.Field(field); ok {
				return value, nil
			}
		}
	}
	if value, ok := r.cfg.Setting(name); ok {
		return value, nil
	}
	if hasDefault {
		return def, nil
	}
	return "", &ConfigError{Setting: name, Tenant: tenant}
}

// clientSecret decrypts the tenant's stored secret. Secrets never come from
// process config, so absence of a record value is terminal.
func (r *Resolver) clientSecret(provider *domain.ProviderConfig, tenant, def string, hasDefault bool) (string, error) {
	if provider == nil || len(provider.ClientSecretCipher) == 0 {
		if hasDefault {
			return def, nil
		}
		return "", &ConfigError{Setting: ClientSecret, Tenant: tenant}
	}
	plain, err := r.cipher.Decrypt(provider.ClientSecretCipher)
	if err != nil {
		return "", fmt.Errorf("decrypt client secret for tenant %q: %w", tenant, err)
	}
	return string(plain), nil
}
