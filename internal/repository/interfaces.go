package repository

import (
	"context"

	"github.com/Wynand91/fedauth/internal/domain"
)

// FederatedProviderRepo is the registry partition keyed by email domain.
type FederatedProviderRepo interface {
	GetByDomain(ctx context.Context, domainKey string) (domain.FederatedProvider, error)
	List(ctx context.Context) ([]domain.FederatedProvider, error)
	Create(ctx context.Context, provider domain.FederatedProvider) (domain.FederatedProvider, error)
	Update(ctx context.Context, provider domain.FederatedProvider) (domain.FederatedProvider, error)
}

// GenericProviderRepo is the registry partition keyed by provider alias.
type GenericProviderRepo interface {
	GetByAlias(ctx context.Context, alias string) (domain.GenericProvider, error)
	List(ctx context.Context) ([]domain.GenericProvider, error)
	Create(ctx context.Context, provider domain.GenericProvider) (domain.GenericProvider, error)
	Update(ctx context.Context, provider domain.GenericProvider) (domain.GenericProvider, error)
}

// UserRepository exposes persistence for local user records.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
}
