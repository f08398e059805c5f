package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values. It is built once at process
// start and passed explicitly into every component that needs it.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string
	DatabaseURL string

	// Redis backs the session store and the exchange-code cache. When
	// RedisAddr is empty both fall back to in-memory stores (dev/tests).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SecretKey is the AES-256 key protecting client secrets at rest.
	SecretKey []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration
	ExchangeCodeTTL time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	NonceSize            int
	Scopes               string
	SignAlgo             string
	IDPSignKey           string
	CallbackURL          string
	RedirectAllowedHosts []string
	AdminGroup           string
	SuperGroup           string
	LoginRedirectURL     string
	LoginRedirectURLFail string

	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	secretRaw := strings.TrimSpace(os.Getenv("SECRET_KEY"))
	if secretRaw == "" {
		return Config{}, fmt.Errorf("SECRET_KEY is required")
	}
	secret, err := base64.StdEncoding.DecodeString(secretRaw)
	if err != nil {
		return Config{}, fmt.Errorf("SECRET_KEY must be base64: %w", err)
	}
	if len(secret) != 32 {
		return Config{}, fmt.Errorf("SECRET_KEY must decode to 32 bytes, got %d", len(secret))
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "fedauth"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		SecretKey:            secret,
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		SessionTTL:           getDuration("SESSION_TTL", time.Hour),
		ExchangeCodeTTL:      getDuration("OIDC_EXCHANGE_CODE_TIMEOUT", time.Minute),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:      getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		NonceSize:            getInt("OIDC_NONCE_SIZE", 32),
		Scopes:               getEnv("OIDC_RP_SCOPES", "openid profile email phone groups"),
		SignAlgo:             getEnv("OIDC_RP_SIGN_ALGO", "RS256"),
		IDPSignKey:           os.Getenv("OIDC_RP_IDP_SIGN_KEY"),
		CallbackURL:          os.Getenv("OIDC_CALLBACK_URL"),
		RedirectAllowedHosts: getList("OIDC_REDIRECT_ALLOWED_HOSTS", nil),
		AdminGroup:           getEnv("OIDC_ADMIN_GROUP", "admin"),
		SuperGroup:           getEnv("OIDC_SUPER_GROUP", "superuser"),
		LoginRedirectURL:     getEnv("LOGIN_REDIRECT_URL", "/"),
		LoginRedirectURLFail: getEnv("LOGIN_REDIRECT_URL_FAILURE", "/"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// Setting exposes process-wide OIDC defaults under their canonical setting
// names. The settings resolver falls through to these when a provider record
// has no tenant-specific value.
func (c Config) Setting(name string) (string, bool) {
	switch name {
	case "OIDC_RP_SCOPES":
		return c.Scopes, c.Scopes != ""
	case "OIDC_RP_SIGN_ALGO":
		return c.SignAlgo, c.SignAlgo != ""
	case "OIDC_RP_IDP_SIGN_KEY":
		return c.IDPSignKey, c.IDPSignKey != ""
	case "OIDC_CALLBACK_URL":
		return c.CallbackURL, c.CallbackURL != ""
	case "OIDC_NONCE_SIZE":
		return strconv.Itoa(c.NonceSize), true
	case "LOGIN_REDIRECT_URL":
		return c.LoginRedirectURL, c.LoginRedirectURL != ""
	case "LOGIN_REDIRECT_URL_FAILURE":
		return c.LoginRedirectURLFail, c.LoginRedirectURLFail != ""
	case "OIDC_ADMIN_GROUP":
		return c.AdminGroup, c.AdminGroup != ""
	case "OIDC_SUPER_GROUP":
		return c.SuperGroup, c.SuperGroup != ""
	}
	return "", false
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
