package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

const accountListNamespace = "admin.accounts"

type ProfileUpdateInput struct {
	Name  *string
	Email *string
}

// AccountService owns self-service profile access and the admin account
// operations. Every admin mutation reloads its target and consults the
// EscalationPolicy before writing.
type AccountService struct {
	accounts repository.AccountRepository
	policy   *EscalationPolicy
	cache    AccountListCacheStore
	cacheTTL time.Duration
	logger   *slog.Logger
	sf       singleflight.Group
	now      func() time.Time
}

func NewAccountService(cfg *config.Config, accounts repository.AccountRepository, policy *EscalationPolicy, cache AccountListCacheStore, logger *slog.Logger) *AccountService {
	ttl := cfg.AccountListCacheTTL
	if !cfg.AccountListCacheEnabled {
		ttl = 0
	}
	if cache == nil {
		cache = NewNoopAccountListCacheStore()
	}
	return &AccountService{
		accounts: accounts,
		policy:   policy,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AccountService) Profile(ctx context.Context, id uint) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookupError(err)
	}
	return account, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, id uint, in ProfileUpdateInput) (*domain.Account, error) {
	var update repository.AccountProfileUpdate
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > 100 {
			return nil, invalidInput("name must be between 1 and 100 characters")
		}
		update.Name = &name
	}
	if in.Email != nil {
		email := repository.NormalizeEmail(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if update.Name == nil && update.Email == nil {
		return nil, invalidInput("at least one of name or email is required")
	}

	if err := s.accounts.UpdateProfile(ctx, id, update); err != nil {
		observability.RecordUserProfileEvent(ctx, "update", "error")
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, translateLookupError(err)
	}
	observability.RecordUserProfileEvent(ctx, "update", "success")
	s.invalidateList(ctx)
	return s.Profile(ctx, id)
}

// List returns a page of accounts, never including the super-admin. Pages are
// served from the list cache when possible and concurrent misses for the
// same page share one query.
func (s *AccountService) List(ctx context.Context, query repository.AccountListQuery) (repository.PageResult[domain.Account], error) {
	query.PageRequest = query.PageRequest.Normalize()
	key := accountListCacheKey(query)

	if page, ok := s.cachedPage(ctx, key); ok {
		return page, nil
	}

	res, err, shared := s.sf.Do(key, func() (any, error) {
		if page, ok := s.cachedPage(ctx, key); ok {
			return page, nil
		}
		page, err := s.accounts.ListPaged(ctx, query)
		if err != nil {
			return nil, err
		}
		s.storePage(ctx, key, page)
		return page, nil
	})
	if shared {
		observability.RecordAdminListCacheEvent(ctx, "accounts", "singleflight_shared")
	}
	if err != nil {
		return repository.PageResult[domain.Account]{}, internalError(err)
	}
	return res.(repository.PageResult[domain.Account]), nil
}

// Get hides the super-admin behind NotFound.
func (s *AccountService) Get(ctx context.Context, id uint) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookupError(err)
	}
	if account.IsSuperAdmin {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *AccountService) ChangeRole(ctx context.Context, actor *domain.Account, id uint, role, secret string) (*domain.Account, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !domain.IsValidRole(role) {
		return nil, invalidInput("role must be one of user, admin")
	}
	target, kind, err := s.authorize(ctx, actor, id, secret, func(t *domain.Account) MutationKind {
		return RoleMutationKind(t.Role, role)
	})
	if err != nil {
		return nil, err
	}
	if target.Role != role {
		if err := s.accounts.UpdateRole(ctx, target.ID, role); err != nil {
			observability.RecordAdminAccountMutation(ctx, string(kind), "error")
			return nil, translateLookupError(err)
		}
		target.Role = role
		s.invalidateList(ctx)
	}
	observability.RecordAdminAccountMutation(ctx, string(kind), "success")
	return target, nil
}

func (s *AccountService) SetBanned(ctx context.Context, actor *domain.Account, id uint, banned bool, secret string) (*domain.Account, error) {
	target, kind, err := s.authorize(ctx, actor, id, secret, func(*domain.Account) MutationKind {
		return BanMutationKind(banned)
	})
	if err != nil {
		return nil, err
	}
	if target.Banned != banned {
		if err := s.accounts.SetBanned(ctx, target.ID, banned); err != nil {
			observability.RecordAdminAccountMutation(ctx, string(kind), "error")
			return nil, translateLookupError(err)
		}
		target.Banned = banned
		s.invalidateList(ctx)
	}
	observability.RecordAdminAccountMutation(ctx, string(kind), "success")
	return target, nil
}

func (s *AccountService) Delete(ctx context.Context, actor *domain.Account, id uint, secret string) error {
	target, kind, err := s.authorize(ctx, actor, id, secret, func(*domain.Account) MutationKind {
		return MutationDelete
	})
	if err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, target.ID); err != nil {
		observability.RecordAdminAccountMutation(ctx, string(kind), "error")
		return translateLookupError(err)
	}
	s.invalidateList(ctx)
	observability.RecordAdminAccountMutation(ctx, string(kind), "success")
	return nil
}

// Stats counts visible accounts, and those created since midnight UTC.
func (s *AccountService) Stats(ctx context.Context) (repository.AccountStats, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := s.accounts.Stats(ctx, startOfDay)
	if err != nil {
		return repository.AccountStats{}, internalError(err)
	}
	return stats, nil
}

func (s *AccountService) authorize(ctx context.Context, actor *domain.Account, id uint, secret string, kindOf func(*domain.Account) MutationKind) (*domain.Account, MutationKind, error) {
	if actor == nil {
		return nil, "", ErrAccessDenied
	}
	target, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, "", translateLookupError(err)
	}
	kind := kindOf(target)
	decision := s.policy.CanMutate(actor, target, kind, secret)
	if !decision.Allowed {
		observability.RecordEscalationDecision(ctx, string(kind), string(decision.Reason))
		s.logger.WarnContext(ctx, "account mutation denied",
			"actor_id", actor.ID,
			"target_id", target.ID,
			"kind", kind,
			"reason", decision.Reason,
		)
		return nil, kind, decision.Err()
	}
	observability.RecordEscalationDecision(ctx, string(kind), "allowed")
	return target, kind, nil
}

func (s *AccountService) cachedPage(ctx context.Context, key string) (repository.PageResult[domain.Account], bool) {
	if s.cacheTTL <= 0 {
		return repository.PageResult[domain.Account]{}, false
	}
	raw, ok, age, err := s.cache.GetWithAge(ctx, accountListNamespace, key)
	if err != nil {
		observability.RecordAdminListCacheEvent(ctx, "accounts", "error")
		s.logger.WarnContext(ctx, "account list cache read failed", "error", err)
		return repository.PageResult[domain.Account]{}, false
	}
	if !ok {
		observability.RecordAdminListCacheEvent(ctx, "accounts", "miss")
		return repository.PageResult[domain.Account]{}, false
	}
	var page repository.PageResult[domain.Account]
	if err := json.Unmarshal(raw, &page); err != nil {
		observability.RecordAdminListCacheEvent(ctx, "accounts", "corrupt")
		return repository.PageResult[domain.Account]{}, false
	}
	observability.RecordAdminListCacheEvent(ctx, "accounts", "hit")
	observability.RecordAdminListCacheEntryAge(ctx, "accounts", age)
	return page, true
}

func (s *AccountService) storePage(ctx context.Context, key string, page repository.PageResult[domain.Account]) {
	if s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, accountListNamespace, key, raw, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "account list cache write failed", "error", err)
	}
}

func (s *AccountService) invalidateList(ctx context.Context) {
	invalidateAccountList(ctx, s.cache, s.logger)
}

// invalidateAccountList drops every cached admin list page. Any service that
// writes an account calls it after a successful write.
func invalidateAccountList(ctx context.Context, cache AccountListCacheStore, logger *slog.Logger) {
	if err := cache.InvalidateNamespace(ctx, accountListNamespace); err != nil {
		observability.RecordAdminListCacheEvent(ctx, "accounts", "invalidate_error")
		logger.WarnContext(ctx, "account list cache invalidation failed", "error", err)
	}
}

func accountListCacheKey(q repository.AccountListQuery) string {
	banned := "any"
	if q.Banned != nil {
		banned = fmt.Sprintf("%t", *q.Banned)
	}
	return fmt.Sprintf("page=%d|size=%d|sort=%s:%s|email=%s|role=%s|banned=%s",
		q.Page, q.PageSize, q.SortBy, q.SortOrder, repository.NormalizeEmail(q.Email), q.Role, banned)
}

func translateLookupError(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return internalError(err)
}
