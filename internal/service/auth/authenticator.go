package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/adapter/idp"
	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/domain"
	"github.com/Wynand91/fedauth/internal/repository"
	"github.com/Wynand91/fedauth/internal/session"
	"github.com/Wynand91/fedauth/internal/settings"
	"github.com/Wynand91/fedauth/internal/validate"
)

// Authenticator turns identity provider callbacks into local user records.
// Construction wires the collaborators only; tenant credentials resolve lazily
// per flow, so a provider record edited mid-flight is picked up on the next
// authentication without a restart.
type Authenticator struct {
	cfg       config.Config
	resolver  *settings.Resolver
	federated repository.FederatedProviderRepo
	generic   repository.GenericProviderRepo
	users     repository.UserRepository
	client    *idp.Client
	verifier  *idp.Verifier
	ids       *snowflake.Node
	logger    *zap.Logger
}

// NewAuthenticator constructs the authenticator holder.
func NewAuthenticator(
	cfg config.Config,
	resolver *settings.Resolver,
	federated repository.FederatedProviderRepo,
	generic repository.GenericProviderRepo,
	users repository.UserRepository,
	client *idp.Client,
	verifier *idp.Verifier,
	ids *snowflake.Node,
	logger *zap.Logger,
) *Authenticator {
	return &Authenticator{
		cfg:       cfg,
		resolver:  resolver,
		federated: federated,
		generic:   generic,
		users:     users,
		client:    client,
		verifier:  verifier,
		ids:       ids,
		logger:    logger,
	}
}

// TenantAuth is an authenticator configured for one flow's tenant context.
type TenantAuth struct {
	parent   *Authenticator
	tenant   string
	provider *domain.ProviderConfig
}

// Configure binds the authenticator to the flow's tenant, loading the
// provider record for federated domains and generic aliases. A flow with no
// tenant context runs entirely off process configuration.
func (a *Authenticator) Configure(ctx context.Context, tenant session.Tenant) (*TenantAuth, error) {
	ta := &TenantAuth{parent: a, tenant: tenant.Key}
	switch tenant.Kind {
	case session.TenantFederated:
		rec, err := a.federated.GetByDomain(ctx, tenant.Key)
		switch {
		case err == nil:
			ta.provider = &rec.ProviderConfig
		case errors.Is(err, domain.ErrProviderNotFound):
			// Record deleted mid-flow: settings fall through to globals.
			a.logger.Warn("federated provider record gone, using global settings",
				zap.String("domain", tenant.Key),
			)
		default:
			return nil, fmt.Errorf("load federated provider %q: %w", tenant.Key, err)
		}
	case session.TenantGeneric:
		rec, err := a.generic.GetByAlias(ctx, tenant.Key)
		switch {
		case err == nil:
			ta.provider = &rec.ProviderConfig
		case errors.Is(err, domain.ErrProviderNotFound):
			a.logger.Warn("generic provider record gone, using global settings",
				zap.String("alias", tenant.Key),
			)
		default:
			return nil, fmt.Errorf("load generic provider %q: %w", tenant.Key, err)
		}
	case session.TenantNone:
	default:
		return nil, fmt.Errorf("unknown tenant kind %q", tenant.Kind)
	}
	return ta, nil
}

// Authenticate redeems the provider's authorization code, verifies the ID
// token against the expected nonce, and creates or refreshes the local user.
func (ta *TenantAuth) Authenticate(ctx context.Context, code, redirectURI, nonce string) (domain.User, error) {
	a := ta.parent

	tokenEndpoint, err := a.resolver.Resolve(ta.provider, ta.tenant, settings.TokenEndpoint)
	if err != nil {
		return domain.User{}, err
	}
	clientID, err := a.resolver.Resolve(ta.provider, ta.tenant, settings.ClientID)
	if err != nil {
		return domain.User{}, err
	}
	clientSecret, err := a.resolver.Resolve(ta.provider, ta.tenant, settings.ClientSecret)
	if err != nil {
		return domain.User{}, err
	}
	signAlgo, err := a.resolver.Resolve(ta.provider, ta.tenant, settings.SignAlgo)
	if err != nil {
		return domain.User{}, err
	}
	jwksEndpoint, err := a.resolver.ResolveDefault(ta.provider, ta.tenant, settings.JWKSEndpoint, "")
	if err != nil {
		return domain.User{}, err
	}
	staticKey, err := a.resolver.ResolveDefault(ta.provider, ta.tenant, settings.IDPSignKey, "")
	if err != nil {
		return domain.User{}, err
	}
	if signAlgo != domain.AlgoHS256 && jwksEndpoint == "" && staticKey == "" {
		return domain.User{}, &settings.ConfigError{Setting: settings.JWKSEndpoint, Tenant: ta.tenant}
	}

	tr, err := a.client.ExchangeCode(ctx, tokenEndpoint, clientID, clientSecret, code, redirectURI)
	if err != nil {
		return domain.User{}, fmt.Errorf("redeem authorization code: %w", err)
	}

	claims, err := a.verifier.Verify(ctx, tr.IDToken, idp.VerifyParams{
		SignAlgo:     signAlgo,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		JWKSEndpoint: jwksEndpoint,
		StaticKeyPEM: staticKey,
		Nonce:        nonce,
	})
	if err != nil {
		return domain.User{}, err
	}

	userEndpoint, err := a.resolver.ResolveDefault(ta.provider, ta.tenant, settings.UserEndpoint, "")
	if err != nil {
		return domain.User{}, err
	}
	if userEndpoint != "" {
		info, err := a.client.UserInfo(ctx, userEndpoint, tr.AccessToken)
		if err != nil {
			return domain.User{}, fmt.Errorf("fetch userinfo: %w", err)
		}
		for k, v := range info {
			claims[k] = v
		}
	}

	return a.upsertUser(ctx, claims)
}

// upsertUser maps identity claims to a user record. The email claim is the
// account key and is stored verbatim.
func (a *Authenticator) upsertUser(ctx context.Context, claims map[string]any) (domain.User, error) {
	email, _ := claims["email"].(string)
	if email == "" {
		return domain.User{}, fmt.Errorf("identity claims missing email")
	}

	isStaff, isSuper := a.groupFlags(claims)
	incoming := domain.User{
		Email:       email,
		FirstName:   stringClaim(claims, "given_name"),
		LastName:    stringClaim(claims, "family_name"),
		IsStaff:     isStaff,
		IsSuperuser: isSuper,
	}

	if phone := stringClaim(claims, "phone_number"); phone != "" {
		if normalized, ok := validate.Phone(phone); ok {
			incoming.Phone = normalized
		} else {
			a.logger.Warn("skipping phone claim, not E.164",
				zap.String("email", email),
			)
		}
	}

	existing, err := a.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		incoming.ID = existing.ID
		updated, err := a.users.Update(ctx, incoming)
		if err != nil {
			return domain.User{}, fmt.Errorf("update user: %w", err)
		}
		return updated, nil
	case errors.Is(err, domain.ErrUserNotFound):
		incoming.ID = a.ids.Generate().Int64()
		created, err := a.users.Create(ctx, incoming)
		if err != nil {
			return domain.User{}, fmt.Errorf("create user: %w", err)
		}
		return created, nil
	default:
		return domain.User{}, fmt.Errorf("look up user: %w", err)
	}
}

// groupFlags derives staff/superuser from the groups claim. Each flag tracks
// only its own group, and both are recomputed on every login so revoking a
// group upstream downgrades the account.
func (a *Authenticator) groupFlags(claims map[string]any) (bool, bool) {
	raw, ok := claims["groups"].([]any)
	if !ok {
		return false, false
	}
	var isStaff, isSuper bool
	for _, g := range raw {
		name, _ := g.(string)
		switch strings.TrimSpace(name) {
		case a.cfg.AdminGroup:
			isStaff = true
		case a.cfg.SuperGroup:
			isSuper = true
		}
	}
	return isStaff, isSuper
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
