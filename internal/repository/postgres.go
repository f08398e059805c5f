package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Wynand91/fedauth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ FederatedProviderRepo = (*PostgresFederatedProviderRepo)(nil)
	_ GenericProviderRepo   = (*PostgresGenericProviderRepo)(nil)
	_ UserRepository        = (*PostgresUserRepo)(nil)
)

const selectFederatedSQL = `SELECT domain, auth_endpoint, token_endpoint, user_endpoint, jwks_endpoint,
client_id, client_secret_cipher, sign_algo, scopes, created_at, updated_at
FROM federated_providers`

const insertFederatedSQL = `INSERT INTO federated_providers
(domain, auth_endpoint, token_endpoint, user_endpoint, jwks_endpoint, client_id, client_secret_cipher, sign_algo, scopes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`

const updateFederatedSQL = `UPDATE federated_providers SET
auth_endpoint = $2, token_endpoint = $3, user_endpoint = $4, jwks_endpoint = $5,
client_id = $6, client_secret_cipher = $7, sign_algo = $8, scopes = $9, updated_at = now()
WHERE domain = $1
RETURNING created_at, updated_at`

// PostgresFederatedProviderRepo implements FederatedProviderRepo.
type PostgresFederatedProviderRepo struct {
	db *pgxpool.Pool
}

func NewPostgresFederatedProviderRepo(pool *pgxpool.Pool) *PostgresFederatedProviderRepo {
	return &PostgresFederatedProviderRepo{db: pool}
}

func (r *PostgresFederatedProviderRepo) GetByDomain(ctx context.Context, domainKey string) (domain.FederatedProvider, error) {
	row := r.db.QueryRow(ctx, selectFederatedSQL+" WHERE domain = $1", strings.ToLower(strings.TrimSpace(domainKey)))
	provider, err := scanFederated(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FederatedProvider{}, fmt.Errorf("domain %s: %w", domainKey, domain.ErrProviderNotFound)
		}
		return domain.FederatedProvider{}, fmt.Errorf("get federated provider: %w", err)
	}
	return provider, nil
}

func (r *PostgresFederatedProviderRepo) List(ctx context.Context) ([]domain.FederatedProvider, error) {
	rows, err := r.db.Query(ctx, selectFederatedSQL+" ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("list federated providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.FederatedProvider
	for rows.Next() {
		provider, err := scanFederated(rows)
		if err != nil {
			return nil, fmt.Errorf("scan federated provider: %w", err)
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

func (r *PostgresFederatedProviderRepo) Create(ctx context.Context, p domain.FederatedProvider) (domain.FederatedProvider, error) {
	p.Domain = strings.ToLower(strings.TrimSpace(p.Domain))
	err := r.db.QueryRow(ctx, insertFederatedSQL,
		p.Domain, p.AuthEndpoint, p.TokenEndpoint, p.UserEndpoint, p.JWKSEndpoint,
		p.ClientID, p.ClientSecretCipher, p.SignAlgo, p.Scopes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.FederatedProvider{}, fmt.Errorf("create federated provider: %w", err)
	}
	return p, nil
}

func (r *PostgresFederatedProviderRepo) Update(ctx context.Context, p domain.FederatedProvider) (domain.FederatedProvider, error) {
	p.Domain = strings.ToLower(strings.TrimSpace(p.Domain))
	err := r.db.QueryRow(ctx, updateFederatedSQL,
		p.Domain, p.AuthEndpoint, p.TokenEndpoint, p.UserEndpoint, p.JWKSEndpoint,
		p.ClientID, p.ClientSecretCipher, p.SignAlgo, p.Scopes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FederatedProvider{}, fmt.Errorf("domain %s: %w", p.Domain, domain.ErrProviderNotFound)
		}
		return domain.FederatedProvider{}, fmt.Errorf("update federated provider: %w", err)
	}
	return p, nil
}

func scanFederated(row pgx.Row) (domain.FederatedProvider, error) {
	var p domain.FederatedProvider
	err := row.Scan(&p.Domain, &p.AuthEndpoint, &p.TokenEndpoint, &p.UserEndpoint, &p.JWKSEndpoint,
		&p.ClientID, &p.ClientSecretCipher, &p.SignAlgo, &p.Scopes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const selectGenericSQL = `SELECT alias, auth_endpoint, token_endpoint, user_endpoint, jwks_endpoint,
client_id, client_secret_cipher, sign_algo, scopes, created_at, updated_at
FROM generic_providers`

const insertGenericSQL = `INSERT INTO generic_providers
(alias, auth_endpoint, token_endpoint, user_endpoint, jwks_endpoint, client_id, client_secret_cipher, sign_algo, scopes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`

const updateGenericSQL = `UPDATE generic_providers SET
auth_endpoint = $2, token_endpoint = $3, user_endpoint = $4, jwks_endpoint = $5,
client_id = $6, client_secret_cipher = $7, sign_algo = $8, scopes = $9, updated_at = now()
WHERE alias = $1
RETURNING created_at, updated_at`

// PostgresGenericProviderRepo implements GenericProviderRepo.
type PostgresGenericProviderRepo struct {
	db *pgxpool.Pool
}

func NewPostgresGenericProviderRepo(pool *pgxpool.Pool) *PostgresGenericProviderRepo {
	return &PostgresGenericProviderRepo{db: pool}
}

func (r *PostgresGenericProviderRepo) GetByAlias(ctx context.Context, alias string) (domain.GenericProvider, error) {
	row := r.db.QueryRow(ctx, selectGenericSQL+" WHERE alias = $1", strings.ToLower(strings.TrimSpace(alias)))
	provider, err := scanGeneric(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GenericProvider{}, fmt.Errorf("alias %s: %w", alias, domain.ErrProviderNotFound)
		}
		return domain.GenericProvider{}, fmt.Errorf("get generic provider: %w", err)
	}
	return provider, nil
}

func (r *PostgresGenericProviderRepo) List(ctx context.Context) ([]domain.GenericProvider, error) {
	rows, err := r.db.Query(ctx, selectGenericSQL+" ORDER BY alias")
	if err != nil {
		return nil, fmt.Errorf("list generic providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.GenericProvider
	for rows.Next() {
		provider, err := scanGeneric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generic provider: %w", err)
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

func (r *PostgresGenericProviderRepo) Create(ctx context.Context, p domain.GenericProvider) (domain.GenericProvider, error) {
	p.Alias = strings.ToLower(strings.TrimSpace(p.Alias))
	err := r.db.QueryRow(ctx, insertGenericSQL,
		p.Alias, p.AuthEndpoint, p.TokenEndpoint, p.UserEndpoint, p.JWKSEndpoint,
		p.ClientID, p.ClientSecretCipher, p.SignAlgo, p.Scopes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.GenericProvider{}, fmt.Errorf("create generic provider: %w", err)
	}
	return p, nil
}

func (r *PostgresGenericProviderRepo) Update(ctx context.Context, p domain.GenericProvider) (domain.GenericProvider, error) {
	p.Alias = strings.ToLower(strings.TrimSpace(p.Alias))
	err := r.db.QueryRow(ctx, updateGenericSQL,
		p.Alias, p.AuthEndpoint, p.TokenEndpoint, p.UserEndpoint, p.JWKSEndpoint,
		p.ClientID, p.ClientSecretCipher, p.SignAlgo, p.Scopes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GenericProvider{}, fmt.Errorf("alias %s: %w", p.Alias, domain.ErrProviderNotFound)
		}
		return domain.GenericProvider{}, fmt.Errorf("update generic provider: %w", err)
	}
	return p, nil
}

func scanGeneric(row pgx.Row) (domain.GenericProvider, error) {
	var p domain.GenericProvider
	err := row.Scan(&p.Alias, &p.AuthEndpoint, &p.TokenEndpoint, &p.UserEndpoint, &p.JWKSEndpoint,
		&p.ClientID, &p.ClientSecretCipher, &p.SignAlgo, &p.Scopes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const selectUserSQL = `SELECT id, email, first_name, last_name, phone, is_staff, is_superuser, created_at, updated_at
FROM users WHERE email = $1`

const insertUserSQL = `INSERT INTO users (id, email, first_name, last_name, phone, is_staff, is_superuser)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`

const updateUserSQL = `UPDATE users SET
first_name = $2, last_name = $3, phone = $4, is_staff = $5, is_superuser = $6, updated_at = now()
WHERE id = $1
RETURNING created_at, updated_at`

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	// The email is the account key exactly as the identity provider issued it.
	var u domain.User
	err := r.db.QueryRow(ctx, selectUserSQL, email).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("email %s: %w", email, domain.ErrUserNotFound)
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	err := r.db.QueryRow(ctx, insertUserSQL,
		u.ID, u.Email, u.FirstName, u.LastName, u.Phone, u.IsStaff, u.IsSuperuser,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, u domain.User) (domain.User, error) {
	err := r.db.QueryRow(ctx, updateUserSQL,
		u.ID, u.FirstName, u.LastName, u.Phone, u.IsStaff, u.IsSuperuser,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("user %d: %w", u.ID, domain.ErrUserNotFound)
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}
