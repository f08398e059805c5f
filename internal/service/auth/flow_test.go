package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/adapter/idp"
	"github.com/Wynand91/fedauth/internal/cache"
	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/crypto"
	"github.com/Wynand91/fedauth/internal/domain"
	"github.com/Wynand91/fedauth/internal/session"
	"github.com/Wynand91/fedauth/internal/settings"
	"github.com/Wynand91/fedauth/internal/token"
)

const (
	testClientID     = "client-1"
	testClientSecret = "a-very-long-shared-client-secret"
)

type fakeFederatedRepo struct {
	recs map[string]domain.FederatedProvider
}

func (f *fakeFederatedRepo) GetByDomain(_ context.Context, key string) (domain.FederatedProvider, error) {
	rec, ok := f.recs[key]
	if !ok {
		return domain.FederatedProvider{}, domain.ErrProviderNotFound
	}
	return rec, nil
}

func (f *fakeFederatedRepo) List(context.Context) ([]domain.FederatedProvider, error) {
	return nil, nil
}

func (f *fakeFederatedRepo) Create(_ context.Context, rec domain.FederatedProvider) (domain.FederatedProvider, error) {
	f.recs[rec.Domain] = rec
	return rec, nil
}

func (f *fakeFederatedRepo) Update(_ context.Context, rec domain.FederatedProvider) (domain.FederatedProvider, error) {
	f.recs[rec.Domain] = rec
	return rec, nil
}

type fakeGenericRepo struct {
	recs map[string]domain.GenericProvider
}

func (f *fakeGenericRepo) GetByAlias(_ context.Context, alias string) (domain.GenericProvider, error) {
	rec, ok := f.recs[alias]
	if !ok {
		return domain.GenericProvider{}, domain.ErrProviderNotFound
	}
	return rec, nil
}

func (f *fakeGenericRepo) List(context.Context) ([]domain.GenericProvider, error) {
	return nil, nil
}

func (f *fakeGenericRepo) Create(_ context.Context, rec domain.GenericProvider) (domain.GenericProvider, error) {
	f.recs[rec.Alias] = rec
	return rec, nil
}

func (f *fakeGenericRepo) Update(_ context.Context, rec domain.GenericProvider) (domain.GenericProvider, error) {
	f.recs[rec.Alias] = rec
	return rec, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.Email] = u
	return u, nil
}

func (f *fakeUserRepo) Update(_ context.Context, u domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.UpdatedAt = time.Now()
	f.users[u.Email] = u
	return u, nil
}

// idpControl steers what the fake provider puts into the next ID token.
type idpControl struct {
	mu     sync.Mutex
	nonce  string
	email  string
	groups []string
	phone  string
}

func (c *idpControl) set(fn func(*idpControl)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *idpControl) idToken(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte(testClientSecret)},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	now := time.Now()
	std := gojwt.Claims{
		Issuer:   "https://idp.test",
		Subject:  "idp-user-1",
		Audience: gojwt.Audience{testClientID},
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(time.Minute)),
	}
	custom := map[string]any{
		"nonce":      c.nonce,
		"email":      c.email,
		"given_name": "Bob",
	}
	if len(c.groups) > 0 {
		custom["groups"] = c.groups
	}
	if c.phone != "" {
		custom["phone_number"] = c.phone
	}
	raw, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return raw
}

type testEnv struct {
	svc     *Service
	store   session.Store
	control *idpControl
	users   *fakeUserRepo
	cfg     config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	control := &idpControl{email: "bob@acme.com"}
	router := gin.New()
	router.POST("/token", func(c *gin.Context) {
		if c.PostForm("client_secret") != testClientSecret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
			return
		}
		if c.PostForm("code") != "idp-code" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token": "idp-access",
			"id_token":     control.idToken(t),
			"token_type":   "Bearer",
		})
	})
	idpSrv := httptest.NewServer(router)
	t.Cleanup(idpSrv.Close)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := crypto.NewCipher(key)
	require.NoError(t, err)
	sealed, err := cipher.Encrypt([]byte(testClientSecret))
	require.NoError(t, err)

	providerCfg := domain.ProviderConfig{
		AuthEndpoint:       "https://idp.test/authorize",
		TokenEndpoint:      idpSrv.URL + "/token",
		ClientID:           testClientID,
		ClientSecretCipher: sealed,
		SignAlgo:           domain.AlgoHS256,
	}

	cfg := config.Config{
		SecretKey:            key,
		Scopes:               "openid profile email phone groups",
		SignAlgo:             "RS256",
		CallbackURL:          "https://auth.test/auth/oidc/callback",
		RedirectAllowedHosts: []string{"app.acme.com"},
		AdminGroup:           "admin",
		SuperGroup:           "superuser",
		LoginRedirectURL:     "https://app.acme.com/",
		LoginRedirectURLFail: "https://app.acme.com/login-failed",
		NonceSize:            32,
		ExchangeCodeTTL:      time.Minute,
	}

	federated := &fakeFederatedRepo{recs: map[string]domain.FederatedProvider{
		"acme.com": {Domain: "acme.com", ProviderConfig: providerCfg},
	}}
	generic := &fakeGenericRepo{recs: map[string]domain.GenericProvider{
		"okta": {Alias: "okta", ProviderConfig: providerCfg},
	}}
	users := &fakeUserRepo{users: map[string]domain.User{}}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	resolver := settings.NewResolver(cfg, cipher)
	authn := NewAuthenticator(cfg, resolver, federated, generic, users, idp.NewClient(logger), idp.NewVerifier(), node, logger)
	store := session.NewMemoryStore()
	tokens := token.NewGenerator(key, "fedauth", time.Hour, 24*time.Hour)
	svc := NewService(cfg, resolver, federated, generic, users, authn, store, cache.NewMemoryCodeStore(), tokens, logger)

	return &testEnv{svc: svc, store: store, control: control, users: users, cfg: cfg}
}

func newFlowSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New()
	require.NoError(t, err)
	return sess
}

func queryParam(t *testing.T, rawURL, name string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get(name)
}

func TestStartLoginRequiresExactlyOneSelector(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.svc.StartLogin(ctx, newFlowSession(t), "", "", "", "")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, _, err = env.svc.StartLogin(ctx, newFlowSession(t), "bob@acme.com", "okta", "", "")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStartLoginUnknownDomain(t *testing.T) {
	env := newTestEnv(t)

	authURL, found, err := env.svc.StartLogin(context.Background(), newFlowSession(t), "eve@nowhere.org", "", "", "")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, authURL)
}

func TestStartLoginUnknownAlias(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.StartLogin(context.Background(), newFlowSession(t), "", "no-such-idp", "", "")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStartLoginRejectsForeignRedirects(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.StartLogin(context.Background(), newFlowSession(t), "bob@acme.com", "", "https://evil.com/", "")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStartLoginStateIsSessionID(t *testing.T) {
	env := newTestEnv(t)
	sess := newFlowSession(t)

	authURL, found, err := env.svc.StartLogin(context.Background(), sess, "bob@acme.com", "", "https://app.acme.com/home", "https://app.acme.com/oops")
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, sess.ID(), queryParam(t, authURL, "state"))
	require.NotEmpty(t, queryParam(t, authURL, "nonce"))
	require.Equal(t, "code", queryParam(t, authURL, "response_type"))
	require.Equal(t, testClientID, queryParam(t, authURL, "client_id"))
	require.Equal(t, env.cfg.CallbackURL, queryParam(t, authURL, "redirect_uri"))
	require.Equal(t, session.Tenant{Kind: session.TenantFederated, Key: "acme.com"}, sess.Tenant())
}

func TestFullFederatedFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := newFlowSession(t)

	authURL, found, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "https://app.acme.com/home", "https://app.acme.com/oops")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))

	env.control.set(func(c *idpControl) { c.nonce = queryParam(t, authURL, "nonce") })

	// The callback lands in a fresh browser session; the state bridges it
	// back to the one that initiated the flow.
	browser := newFlowSession(t)
	redirect, err := env.svc.Callback(ctx, browser, queryParam(t, authURL, "state"), "idp-code", "")
	require.NoError(t, err)
	require.Equal(t, sess.ID(), browser.ID())
	require.True(t, strings.HasPrefix(redirect, "https://app.acme.com/home?"))

	user, err := env.users.GetByEmail(ctx, "bob@acme.com")
	require.NoError(t, err)
	require.Equal(t, "Bob", user.FirstName)
	require.Equal(t, session.TenantNone, browser.Tenant().Kind)

	exchangeCode := queryParam(t, redirect, "code")
	require.NotEmpty(t, exchangeCode)
	require.LessOrEqual(t, len(exchangeCode), maxExchangeCode)

	pair, err := env.svc.Exchange(ctx, exchangeCode)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	_, err = env.svc.Exchange(ctx, exchangeCode)
	require.ErrorIs(t, err, domain.ErrCodeInvalid)
}

func TestBrowserFlowUsesRandomState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := newFlowSession(t)

	authURL, err := env.svc.StartBrowserLogin(ctx, sess, session.Tenant{Kind: session.TenantGeneric, Key: "okta"})
	require.NoError(t, err)

	state := queryParam(t, authURL, "state")
	require.NotEqual(t, sess.ID(), state)

	env.control.set(func(c *idpControl) { c.nonce = queryParam(t, authURL, "nonce") })

	// Same browser, same session: no bridging happens. With no next
	// recorded, no tokens are minted and the redirect is the plain
	// success page, without an exchange code.
	redirect, err := env.svc.Callback(ctx, sess, state, "idp-code", "")
	require.NoError(t, err)
	require.Equal(t, env.cfg.LoginRedirectURL, redirect)
	require.Empty(t, queryParam(t, redirect, "code"))
}

func TestCallbackProviderError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := newFlowSession(t)

	_, _, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "https://app.acme.com/home", "https://app.acme.com/oops")
	require.NoError(t, err)
	require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))

	browser := newFlowSession(t)
	redirect, err := env.svc.Callback(ctx, browser, sess.ID(), "", "access_denied")
	require.NoError(t, err)
	require.Equal(t, "https://app.acme.com/oops", redirect)
	require.Equal(t, session.TenantNone, browser.Tenant().Kind)
}

func TestCallbackUnknownState(t *testing.T) {
	env := newTestEnv(t)
	sess := newFlowSession(t)

	redirect, err := env.svc.Callback(context.Background(), sess, "never-issued", "idp-code", "")
	require.NoError(t, err)
	require.Equal(t, env.cfg.LoginRedirectURLFail, redirect)
}

func TestCallbackNonceMismatchFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := newFlowSession(t)

	_, _, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "", "")
	require.NoError(t, err)
	require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))

	// Provider signs a token carrying the wrong nonce.
	env.control.set(func(c *idpControl) { c.nonce = "tampered" })

	browser := newFlowSession(t)
	redirect, err := env.svc.Callback(ctx, browser, sess.ID(), "idp-code", "")
	require.NoError(t, err)
	require.Equal(t, env.cfg.LoginRedirectURLFail, redirect)

	_, err = env.users.GetByEmail(ctx, "bob@acme.com")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGroupsDriveFlags(t *testing.T) {
	cases := []struct {
		name    string
		groups  []string
		isStaff bool
		isSuper bool
	}{
		{"no groups", nil, false, false},
		{"admin only", []string{"admin"}, true, false},
		{"superuser only", []string{"superuser"}, false, true},
		{"admin and superuser", []string{"admin", "superuser"}, true, true},
		{"unrelated groups", []string{"devs", "ops"}, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			sess := newFlowSession(t)

			authURL, _, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "", "")
			require.NoError(t, err)
			require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))

			env.control.set(func(c *idpControl) {
				c.nonce = queryParam(t, authURL, "nonce")
				c.groups = tc.groups
			})

			browser := newFlowSession(t)
			_, err = env.svc.Callback(ctx, browser, sess.ID(), "idp-code", "")
			require.NoError(t, err)

			user, err := env.users.GetByEmail(ctx, "bob@acme.com")
			require.NoError(t, err)
			require.Equal(t, tc.isStaff, user.IsStaff)
			require.Equal(t, tc.isSuper, user.IsSuperuser)
		})
	}
}

func TestInvalidPhoneClaimSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := newFlowSession(t)

	authURL, _, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "", "")
	require.NoError(t, err)
	require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))

	env.control.set(func(c *idpControl) {
		c.nonce = queryParam(t, authURL, "nonce")
		c.phone = "082 123 4567"
	})

	browser := newFlowSession(t)
	_, err = env.svc.Callback(ctx, browser, sess.ID(), "idp-code", "")
	require.NoError(t, err)

	user, err := env.users.GetByEmail(ctx, "bob@acme.com")
	require.NoError(t, err)
	require.Empty(t, user.Phone)
}

func TestSpacedPhoneClaimStoredNormalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := newFlowSession(t)

	authURL, _, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "", "")
	require.NoError(t, err)
	require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))

	env.control.set(func(c *idpControl) {
		c.nonce = queryParam(t, authURL, "nonce")
		c.phone = "+27 82 123 4567"
	})

	browser := newFlowSession(t)
	_, err = env.svc.Callback(ctx, browser, sess.ID(), "idp-code", "")
	require.NoError(t, err)

	user, err := env.users.GetByEmail(ctx, "bob@acme.com")
	require.NoError(t, err)
	require.Equal(t, "+27821234567", user.Phone)
}

func TestExchangeRejectsMalformedCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Exchange(ctx, "")
	require.ErrorIs(t, err, domain.ErrCodeInvalid)

	_, err = env.svc.Exchange(ctx, strings.Repeat("x", maxExchangeCode+1))
	require.ErrorIs(t, err, domain.ErrCodeInvalid)

	_, err = env.svc.Exchange(ctx, "never-issued")
	require.ErrorIs(t, err, domain.ErrCodeInvalid)
}

func TestRepeatLoginUpdatesUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	login := func(groups []string) {
		sess := newFlowSession(t)
		authURL, _, err := env.svc.StartLogin(ctx, sess, "bob@acme.com", "", "", "")
		require.NoError(t, err)
		require.NoError(t, env.store.Save(ctx, sess.ID(), sess.Data(), time.Hour))
		env.control.set(func(c *idpControl) {
			c.nonce = queryParam(t, authURL, "nonce")
			c.groups = groups
		})
		browser := newFlowSession(t)
		_, err = env.svc.Callback(ctx, browser, sess.ID(), "idp-code", "")
		require.NoError(t, err)
	}

	login([]string{"admin"})
	user, err := env.users.GetByEmail(ctx, "bob@acme.com")
	require.NoError(t, err)
	require.True(t, user.IsStaff)
	firstID := user.ID

	// Group revoked upstream: next login downgrades the account.
	login(nil)
	user, err = env.users.GetByEmail(ctx, "bob@acme.com")
	require.NoError(t, err)
	require.False(t, user.IsStaff)
	require.Equal(t, firstID, user.ID)
}
