package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/adapter/idp"
	"github.com/Wynand91/fedauth/internal/bootstrap"
	"github.com/Wynand91/fedauth/internal/cache"
	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/crypto"
	httptransport "github.com/Wynand91/fedauth/internal/http"
	"github.com/Wynand91/fedauth/internal/http/handler"
	"github.com/Wynand91/fedauth/internal/http/middleware"
	"github.com/Wynand91/fedauth/internal/repository"
	"github.com/Wynand91/fedauth/internal/server"
	authservice "github.com/Wynand91/fedauth/internal/service/auth"
	"github.com/Wynand91/fedauth/internal/session"
	"github.com/Wynand91/fedauth/internal/settings"
	"github.com/Wynand91/fedauth/internal/telemetry"
	"github.com/Wynand91/fedauth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newCipher,
			settings.NewResolver,
			newFederatedProviderRepo,
			newGenericProviderRepo,
			newUserRepository,
			newStores,
			newTokenGenerator,
			idp.NewClient,
			idp.NewVerifier,
			authservice.NewAuthenticator,
			authservice.NewService,
			newAuthHandler,
			newAdminHandler,
			newAuthMiddleware,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newCipher(cfg config.Config) (*crypto.Cipher, error) {
	return crypto.NewCipher(cfg.SecretKey)
}

func newFederatedProviderRepo(pool *pgxpool.Pool) repository.FederatedProviderRepo {
	return repository.NewPostgresFederatedProviderRepo(pool)
}

func newGenericProviderRepo(pool *pgxpool.Pool) repository.GenericProviderRepo {
	return repository.NewPostgresGenericProviderRepo(pool)
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

// newStores picks the session and exchange-code backends. Redis when
// configured; otherwise in-process stores for single-instance deployments.
func newStores(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (session.Store, cache.CodeStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory session and code stores")
		return session.NewMemoryStore(), cache.NewMemoryCodeStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return session.NewRedisStore(client), cache.NewRedisCodeStore(client), nil
}

func newTokenGenerator(cfg config.Config) *token.Generator {
	return token.NewGenerator(cfg.SecretKey, cfg.ServiceName, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newAuthHandler(svc *authservice.Service, logger *zap.Logger) *handler.AuthHandler {
	return &handler.AuthHandler{Svc: svc, Logger: logger}
}

func newAdminHandler(
	federated repository.FederatedProviderRepo,
	generic repository.GenericProviderRepo,
	cipher *crypto.Cipher,
	logger *zap.Logger,
) *handler.AdminHandler {
	return &handler.AdminHandler{Federated: federated, Generic: generic, Cipher: cipher, Logger: logger}
}

func newAuthMiddleware(tokens *token.Generator) *middleware.Auth {
	return &middleware.Auth{Tokens: tokens}
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
