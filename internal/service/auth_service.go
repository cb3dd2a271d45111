package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
)

const dateOfBirthLayout = "2006-01-02"

type AuthService struct {
	accounts repository.AccountRepository
	tokens   *security.JWTManager
	policy   *EscalationPolicy
	cache    AccountListCacheStore
	logger   *slog.Logger
	minAge   int
	now      func() time.Time
}

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	DateOfBirth string
}

type LoginResult struct {
	Account     *domain.Account `json:"account"`
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

var (
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
	specialRe   = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func NewAuthService(cfg *config.Config, accounts repository.AccountRepository, tokens *security.JWTManager, policy *EscalationPolicy, cache AccountListCacheStore, logger *slog.Logger) *AuthService {
	if cache == nil {
		cache = NewNoopAccountListCacheStore()
	}
	return &AuthService{
		accounts: accounts,
		tokens:   tokens,
		policy:   policy,
		cache:    cache,
		logger:   logger,
		minAge:   cfg.MinRegistrationAge,
		now:      time.Now,
	}
}

// Register creates a plain user account. The first account ever stored is
// elected super-admin by the repository.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := repository.NormalizeEmail(in.Email)
	if name == "" {
		return nil, invalidInput("name is required")
	}
	if len(name) > 100 {
		return nil, invalidInput("name must be at most 100 characters")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	dob, err := parseDateOfBirth(in.DateOfBirth)
	if err != nil {
		return nil, err
	}
	if age := domain.AgeOn(dob, s.now().UTC()); age < s.minAge {
		observability.RecordAuthFlowEvent(ctx, "register", "underage")
		return nil, ErrUnderage.withMessage(fmt.Sprintf("You must be at least %d years old to register", s.minAge))
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, internalError(err)
	}
	account := &domain.Account{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		DateOfBirth:  dob,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			observability.RecordAuthFlowEvent(ctx, "register", "duplicate_email")
			return nil, ErrDuplicateEmail
		}
		observability.RecordAuthFlowEvent(ctx, "register", "error")
		return nil, internalError(err)
	}
	observability.RecordAuthFlowEvent(ctx, "register", "success")
	invalidateAccountList(ctx, s.cache, s.logger)
	return account, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalidInput("email and password are required")
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthFlowEvent(ctx, "login", "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, internalError(err)
	}
	ok, err := security.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		return nil, internalError(err)
	}
	if !ok {
		observability.RecordAuthFlowEvent(ctx, "login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if account.Banned {
		observability.RecordAuthFlowEvent(ctx, "login", "banned")
		return nil, ErrAccountBanned
	}

	token, expiresAt, err := s.tokens.SignAccessToken(security.Identity{
		AccountID:    account.ID,
		Email:        account.Email,
		Role:         account.Role,
		IsSuperAdmin: account.IsSuperAdmin,
	})
	if err != nil {
		return nil, internalError(err)
	}
	observability.RecordAuthFlowEvent(ctx, "login", "success")
	return &LoginResult{Account: account, AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// VerifySuperAdminSecret accepts either the configured master secret or the
// current super-admin's own password.
func (s *AuthService) VerifySuperAdminSecret(ctx context.Context, password string) error {
	if password == "" {
		return invalidInput("password is required")
	}
	if s.policy.MatchesMasterSecret(password) {
		observability.RecordAuthFlowEvent(ctx, "verify_super_admin", "master_secret")
		return nil
	}
	super, err := s.accounts.FindSuperAdmin(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrSuperAdminNotFound
		}
		return internalError(err)
	}
	ok, err := security.VerifyPassword(super.PasswordHash, password)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		observability.RecordAuthFlowEvent(ctx, "verify_super_admin", "denied")
		return ErrInvalidSuperAdminPass
	}
	observability.RecordAuthFlowEvent(ctx, "verify_super_admin", "password")
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return invalidInput("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidInput("invalid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 || !uppercaseRe.MatchString(password) ||
		!lowercaseRe.MatchString(password) || !digitRe.MatchString(password) || !specialRe.MatchString(password) {
		return ErrWeakPassword
	}
	return nil
}

func parseDateOfBirth(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalidInput("date_of_birth is required")
	}
	dob, err := time.Parse(dateOfBirthLayout, raw)
	if err != nil {
		return time.Time{}, invalidInput("date_of_birth must be formatted as YYYY-MM-DD")
	}
	return dob, nil
}
