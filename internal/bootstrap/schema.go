package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// schemaStatements create the tables the service needs. All statements are
// idempotent; production deployments run proper migrations instead and these
// become no-ops.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS federated_providers (
		domain TEXT PRIMARY KEY,
		auth_endpoint TEXT NOT NULL DEFAULT '',
		token_endpoint TEXT NOT NULL DEFAULT '',
		user_endpoint TEXT NOT NULL DEFAULT '',
		jwks_endpoint TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		client_secret_cipher BYTEA,
		sign_algo TEXT NOT NULL DEFAULT '',
		scopes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS generic_providers (
		alias TEXT PRIMARY KEY,
		auth_endpoint TEXT NOT NULL DEFAULT '',
		token_endpoint TEXT NOT NULL DEFAULT '',
		user_endpoint TEXT NOT NULL DEFAULT '',
		jwks_endpoint TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		client_secret_cipher BYTEA,
		sign_algo TEXT NOT NULL DEFAULT '',
		scopes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		is_staff BOOLEAN NOT NULL DEFAULT FALSE,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates missing tables at startup.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, pool, logger)
		},
	})
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	logger.Info("schema ensured")
	return nil
}
