package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"

	"gorm.io/gorm"
)

// SuperAdminSeed describes the account created when the store is empty.
type SuperAdminSeed struct {
	Name        string
	Email       string
	Password    string
	DateOfBirth string
}

type SeedReport struct {
	Created   bool   `json:"created"`
	AccountID uint   `json:"account_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Noop      bool   `json:"noop"`
	Reason    string `json:"reason,omitempty"`
}

func (s SuperAdminSeed) validate() (time.Time, error) {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(s.Email) == "" {
		errs = append(errs, errors.New("email is required"))
	}
	if len(s.Password) < 12 {
		errs = append(errs, errors.New("password must be at least 12 characters"))
	}
	dob, err := time.Parse(time.DateOnly, strings.TrimSpace(s.DateOfBirth))
	if err != nil {
		errs = append(errs, errors.New("date of birth must be YYYY-MM-DD"))
	}
	return dob, errors.Join(errs...)
}

// SeedSuperAdmin creates the bootstrap account when no account exists yet.
// The first account is always elected super-admin, so the seed only has to
// win the race against the first registration.
func SeedSuperAdmin(ctx context.Context, db *gorm.DB, seed SuperAdminSeed) (*SeedReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	var count int64
	if err := db.WithContext(ctx).Model(&domain.Account{}).Count(&count).Error; err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		return nil, err
	}
	if count > 0 {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "noop")
		return &SeedReport{Noop: true, Reason: fmt.Sprintf("store already holds %d account(s)", count)}, nil
	}

	dob, err := seed.validate()
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "invalid")
		return nil, fmt.Errorf("invalid super-admin seed: %w", err)
	}
	hash, err := security.HashPassword(seed.Password)
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		return nil, err
	}
	account := &domain.Account{
		Name:         strings.TrimSpace(seed.Name),
		Email:        seed.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		DateOfBirth:  dob,
	}
	if err := repository.NewAccountRepository(db).Create(ctx, account); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		return nil, fmt.Errorf("create super-admin: %w", err)
	}
	if !account.IsSuperAdmin {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "noop")
		return &SeedReport{Created: true, AccountID: account.ID, Email: account.Email, Reason: "another account was elected super-admin first"}, nil
	}
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return &SeedReport{Created: true, AccountID: account.ID, Email: account.Email}, nil
}
