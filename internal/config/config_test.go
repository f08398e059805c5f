package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestLoadRequiresSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/fedauth")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsShortSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	t.Setenv("DATABASE_URL", "postgres://localhost/fedauth")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("SECRET_KEY", validKey())
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", validKey())
	t.Setenv("DATABASE_URL", "postgres://localhost/fedauth")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.SecretKey, 32)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, time.Minute, cfg.ExchangeCodeTTL)
	require.Equal(t, time.Hour, cfg.SessionTTL)
	require.Equal(t, 30*time.Second, cfg.ReadTimeout)
	require.Equal(t, 30*time.Second, cfg.WriteTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, "RS256", cfg.SignAlgo)
	require.Equal(t, "admin", cfg.AdminGroup)
	require.Equal(t, "superuser", cfg.SuperGroup)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", validKey())
	t.Setenv("DATABASE_URL", "postgres://localhost/fedauth")
	t.Setenv("OIDC_EXCHANGE_CODE_TIMEOUT", "30s")
	t.Setenv("OIDC_REDIRECT_ALLOWED_HOSTS", "app.acme.com, portal.acme.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.ExchangeCodeTTL)
	require.Equal(t, []string{"app.acme.com", "portal.acme.com"}, cfg.RedirectAllowedHosts)
}

func TestSettingLookup(t *testing.T) {
	cfg := Config{Scopes: "openid email", SignAlgo: "RS256"}

	value, ok := cfg.Setting("OIDC_RP_SCOPES")
	require.True(t, ok)
	require.Equal(t, "openid email", value)

	_, ok = cfg.Setting("OIDC_CALLBACK_URL")
	require.False(t, ok)

	_, ok = cfg.Setting("NO_SUCH_SETTING")
	require.False(t, ok)
}
