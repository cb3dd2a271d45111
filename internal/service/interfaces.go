package service

import (
	"context"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
)

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	VerifySuperAdminSecret(ctx context.Context, password string) error
}

type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, token, newPassword string) error
}

type AccountServiceInterface interface {
	Profile(ctx context.Context, id uint) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id uint, in ProfileUpdateInput) (*domain.Account, error)
	List(ctx context.Context, query repository.AccountListQuery) (repository.PageResult[domain.Account], error)
	Get(ctx context.Context, id uint) (*domain.Account, error)
	ChangeRole(ctx context.Context, actor *domain.Account, id uint, role, secret string) (*domain.Account, error)
	SetBanned(ctx context.Context, actor *domain.Account, id uint, banned bool, secret string) (*domain.Account, error)
	Delete(ctx context.Context, actor *domain.Account, id uint, secret string) error
	Stats(ctx context.Context) (repository.AccountStats, error)
}

var (
	_ AuthServiceInterface          = (*AuthService)(nil)
	_ PasswordResetServiceInterface = (*PasswordResetService)(nil)
	_ AccountServiceInterface       = (*AccountService)(nil)
)
