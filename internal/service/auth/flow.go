package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/cache"
	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/domain"
	"github.com/Wynand91/fedauth/internal/repository"
	"github.com/Wynand91/fedauth/internal/session"
	"github.com/Wynand91/fedauth/internal/settings"
	"github.com/Wynand91/fedauth/internal/token"
	"github.com/Wynand91/fedauth/internal/validate"
)

// maxExchangeCode caps the exchange code length accepted from clients.
const maxExchangeCode = 64

// Service orchestrates the login flows: initiating provider redirects,
// handling the shared callback, and exchanging short-lived codes for tokens.
type Service struct {
	cfg       config.Config
	resolver  *settings.Resolver
	federated repository.FederatedProviderRepo
	generic   repository.GenericProviderRepo
	users     repository.UserRepository
	authn     *Authenticator
	store     session.Store
	codes     cache.CodeStore
	tokens    *token.Generator
	logger    *zap.Logger
}

// NewService constructs the flow service.
func NewService(
	cfg config.Config,
	resolver *settings.Resolver,
	federated repository.FederatedProviderRepo,
	generic repository.GenericProviderRepo,
	users repository.UserRepository,
	authn *Authenticator,
	store session.Store,
	codes cache.CodeStore,
	tokens *token.Generator,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		resolver:  resolver,
		federated: federated,
		generic:   generic,
		users:     users,
		authn:     authn,
		store:     store,
		codes:     codes,
		tokens:    tokens,
		logger:    logger,
	}
}

// StartLogin begins a frontend-initiated flow. Exactly one of username and
// providerAlias selects the tenant. The returned found flag is false when the
// username's domain has no federated record; the frontend then falls back to
// password login.
//
// The session's own identifier becomes the OIDC state parameter, so the
// callback can locate this session even when the provider redirect lands on a
// browser that carries no cookie for us.
func (s *Service) StartLogin(ctx context.Context, sess *session.Session, username, providerAlias, next, fail string) (string, bool, error) {
	if (username == "") == (providerAlias == "") {
		return "", false, fmt.Errorf("%w: exactly one of username and provider is required", domain.ErrInvalidRequest)
	}
	if next != "" {
		if err := validate.RedirectURL(next, s.cfg.RedirectAllowedHosts); err != nil {
			return "", false, fmt.Errorf("%w: next: %v", domain.ErrInvalidRequest, err)
		}
	}
	if fail != "" {
		if err := validate.RedirectURL(fail, s.cfg.RedirectAllowedHosts); err != nil {
			return "", false, fmt.Errorf("%w: fail: %v", domain.ErrInvalidRequest, err)
		}
	}

	var provider *domain.ProviderConfig
	if username != "" {
		domainKey, err := validate.EmailDomain(username)
		if err != nil {
			return "", false, fmt.Errorf("%w: username: %v", domain.ErrInvalidRequest, err)
		}
		rec, err := s.federated.GetByDomain(ctx, domainKey)
		if errors.Is(err, domain.ErrProviderNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("look up federated provider: %w", err)
		}
		provider = &rec.ProviderConfig
		sess.SetFederated(domainKey)
	} else {
		rec, err := s.generic.GetByAlias(ctx, providerAlias)
		if errors.Is(err, domain.ErrProviderNotFound) {
			return "", false, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidRequest, providerAlias)
		}
		if err != nil {
			return "", false, fmt.Errorf("look up generic provider: %w", err)
		}
		provider = &rec.ProviderConfig
		sess.SetGeneric(providerAlias)
	}

	sess.SetRedirects(next, fail)

	authURL, err := s.authorizeURL(provider, sess.Tenant().Key, sess, sess.ID())
	if err != nil {
		return "", false, err
	}
	return authURL, true, nil
}

// StartBrowserLogin begins a browser-navigated flow (the admin login links).
// The state here is a random value rather than the session identifier: the
// redirect returns to the same browser, so the cookie session already carries
// the flow context and no bridging is needed.
func (s *Service) StartBrowserLogin(ctx context.Context, sess *session.Session, tenant session.Tenant) (string, error) {
	var provider *domain.ProviderConfig
	switch tenant.Kind {
	case session.TenantFederated:
		rec, err := s.federated.GetByDomain(ctx, tenant.Key)
		if errors.Is(err, domain.ErrProviderNotFound) {
			return "", fmt.Errorf("%w: unknown domain %q", domain.ErrInvalidRequest, tenant.Key)
		}
		if err != nil {
			return "", fmt.Errorf("look up federated provider: %w", err)
		}
		provider = &rec.ProviderConfig
		sess.SetFederated(tenant.Key)
	case session.TenantGeneric:
		rec, err := s.generic.GetByAlias(ctx, tenant.Key)
		if errors.Is(err, domain.ErrProviderNotFound) {
			return "", fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidRequest, tenant.Key)
		}
		if err != nil {
			return "", fmt.Errorf("look up generic provider: %w", err)
		}
		provider = &rec.ProviderConfig
		sess.SetGeneric(tenant.Key)
	default:
		return "", fmt.Errorf("%w: tenant required", domain.ErrInvalidRequest)
	}

	state, err := randomValue(s.cfg.NonceSize)
	if err != nil {
		return "", err
	}
	return s.authorizeURL(provider, tenant.Key, sess, state)
}

// authorizeURL builds the provider's authorization redirect and records the
// state's nonce in the session.
func (s *Service) authorizeURL(provider *domain.ProviderConfig, tenantKey string, sess *session.Session, state string) (string, error) {
	endpoint, err := s.resolver.Resolve(provider, tenantKey, settings.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}
	clientID, err := s.resolver.Resolve(provider, tenantKey, settings.ClientID)
	if err != nil {
		return "", err
	}
	scopes, err := s.resolver.Resolve(provider, tenantKey, settings.Scopes)
	if err != nil {
		return "", err
	}
	callback, err := s.resolver.Resolve(nil, "", settings.CallbackURL)
	if err != nil {
		return "", err
	}

	nonce, err := randomValue(s.cfg.NonceSize)
	if err != nil {
		return "", err
	}
	sess.PutNonce(state, nonce)

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse authorization endpoint: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", callback)
	q.Set("scope", scopes)
	q.Set("state", state)
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Callback handles the provider redirect shared by every flow. It returns the
// browser redirect target; authentication failures redirect to the flow's
// failure URL rather than erroring. Only configuration faults return an error.
func (s *Service) Callback(ctx context.Context, sess *session.Session, state, code, idpErr string) (string, error) {
	// Bridge: when the state names a session other than the one the browser
	// presented, the flow began in a frontend session we never set a cookie
	// for. Adopt that session so all flow context and writes land there.
	if state != "" && state != sess.ID() {
		data, found, err := s.store.Load(ctx, state)
		if err != nil {
			return "", fmt.Errorf("load session for state: %w", err)
		}
		if found {
			sess.Adopt(state, data)
		}
	}

	if idpErr != "" || code == "" {
		s.logger.Info("provider returned authentication failure",
			zap.String("error", idpErr),
		)
		return s.failRedirect(sess), nil
	}

	nonce, ok := sess.TakeNonce(state)
	if !ok {
		s.logger.Warn("callback state has no recorded nonce")
		return s.failRedirect(sess), nil
	}

	ta, err := s.authn.Configure(ctx, sess.Tenant())
	if err != nil {
		var cfgErr *settings.ConfigError
		if errors.As(err, &cfgErr) {
			return "", err
		}
		s.logger.Warn("tenant configuration failed", zap.Error(err))
		return s.failRedirect(sess), nil
	}

	callback, err := s.resolver.Resolve(nil, "", settings.CallbackURL)
	if err != nil {
		return "", err
	}

	user, err := ta.Authenticate(ctx, code, callback, nonce)
	if err != nil {
		var cfgErr *settings.ConfigError
		if errors.As(err, &cfgErr) {
			return "", err
		}
		s.logger.Warn("authentication failed", zap.Error(err))
		return s.failRedirect(sess), nil
	}

	sess.ClearTenant()
	next := sess.ConsumeNext()
	sess.ConsumeFail()

	// Tokens are delivered through the exchange code only when a frontend
	// asked for them via next. Browser-navigated flows land on the plain
	// success page.
	if next == "" {
		return s.cfg.LoginRedirectURL, nil
	}

	pair, err := s.tokens.GeneratePair(user)
	if err != nil {
		return "", fmt.Errorf("issue tokens: %w", err)
	}
	exchangeCode, err := cache.NewCode(32)
	if err != nil {
		return "", err
	}
	if err := s.codes.Put(ctx, exchangeCode, pair, s.cfg.ExchangeCodeTTL); err != nil {
		return "", err
	}

	target, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse success redirect: %w", err)
	}
	q := target.Query()
	q.Set("code", exchangeCode)
	target.RawQuery = q.Encode()
	return target.String(), nil
}

func (s *Service) failRedirect(sess *session.Session) string {
	sess.ClearTenant()
	sess.ConsumeNext()
	fail := sess.ConsumeFail()
	if fail == "" {
		fail = s.cfg.LoginRedirectURLFail
	}
	return fail
}

// Exchange redeems a short-lived code for its token pair. Codes are
// single-use; a second exchange of the same code fails identically to an
// unknown one.
func (s *Service) Exchange(ctx context.Context, code string) (token.Pair, error) {
	if code == "" || len(code) > maxExchangeCode {
		return token.Pair{}, domain.ErrCodeInvalid
	}
	pair, ok, err := s.codes.Take(ctx, code)
	if err != nil {
		return token.Pair{}, fmt.Errorf("take exchange code: %w", err)
	}
	if !ok {
		return token.Pair{}, domain.ErrCodeInvalid
	}
	return pair, nil
}

// Me returns the user record behind a validated access token's email claim.
func (s *Service) Me(ctx context.Context, email string) (domain.User, error) {
	return s.users.GetByEmail(ctx, email)
}

func randomValue(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
