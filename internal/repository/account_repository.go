package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrResetTokenNotFound = errors.New("reset token not found")
)

type AccountListQuery struct {
	PageRequest
	SortBy    string
	SortOrder string
	Email     string
	Role      string
	Banned    *bool
}

type AccountStats struct {
	TotalAccounts        int64 `json:"total_accounts"`
	AccountsCreatedSince int64 `json:"accounts_created_today"`
}

type AccountProfileUpdate struct {
	Name  *string
	Email *string
}

type AccountRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindSuperAdmin(ctx context.Context) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	UpdateProfile(ctx context.Context, id uint, update AccountProfileUpdate) error
	UpdateRole(ctx context.Context, id uint, role string) error
	SetBanned(ctx context.Context, id uint, banned bool) error
	SetPassword(ctx context.Context, id uint, passwordHash string) error
	SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uint) error
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uint, error)
	Delete(ctx context.Context, id uint) error
	ListPaged(ctx context.Context, query AccountListQuery) (PageResult[domain.Account], error)
	Stats(ctx context.Context, since time.Time) (AccountStats, error)
}

type GormAccountRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &GormAccountRepository{db: db, now: time.Now}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormAccountRepository) FindByID(ctx context.Context, id uint) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, r.lookupError(ctx, "find_by_id", err)
	}
	observability.RecordRepositoryOperation(ctx, "account", "find_by_id", "success")
	return &account, nil
}

func (r *GormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&account).Error; err != nil {
		return nil, r.lookupError(ctx, "find_by_email", err)
	}
	observability.RecordRepositoryOperation(ctx, "account", "find_by_email", "success")
	return &account, nil
}

func (r *GormAccountRepository) FindSuperAdmin(ctx context.Context) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).Where("super_admin_slot = ?", true).First(&account).Error; err != nil {
		return nil, r.lookupError(ctx, "find_super_admin", err)
	}
	observability.RecordRepositoryOperation(ctx, "account", "find_super_admin", "success")
	return &account, nil
}

// Create inserts the account and elects it super-admin when no super-admin
// exists. The unique index on super_admin_slot arbitrates concurrent
// elections: the loser of the race is retried as a plain account.
func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	account.Email = NormalizeEmail(account.Email)
	if account.Role == "" {
		account.Role = domain.RoleUser
	}

	var elected int64
	if err := r.db.WithContext(ctx).Model(&domain.Account{}).Where("super_admin_slot = ?", true).Count(&elected).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "create", "error")
		return err
	}
	if elected == 0 {
		candidate := *account
		candidate.ClaimSuperAdminSlot()
		err := r.db.WithContext(ctx).Create(&candidate).Error
		if err == nil {
			*account = candidate
			observability.RecordRepositoryOperation(ctx, "account", "create", "success")
			return nil
		}
		if !isUniqueViolation(err) {
			observability.RecordRepositoryOperation(ctx, "account", "create", "error")
			return err
		}
		if _, findErr := r.FindByEmail(ctx, account.Email); findErr == nil {
			observability.RecordRepositoryOperation(ctx, "account", "create", "conflict")
			return ErrDuplicateEmail
		}
	}

	account.ReleaseSuperAdminSlot()
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(ctx, "account", "create", "conflict")
			return ErrDuplicateEmail
		}
		observability.RecordRepositoryOperation(ctx, "account", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "account", "create", "success")
	return nil
}

func (r *GormAccountRepository) UpdateProfile(ctx context.Context, id uint, update AccountProfileUpdate) error {
	updates := map[string]any{"updated_at": r.now().UTC()}
	if update.Name != nil {
		updates["name"] = strings.TrimSpace(*update.Name)
	}
	if update.Email != nil {
		updates["email"] = NormalizeEmail(*update.Email)
	}
	err := r.updateByID(ctx, "update_profile", id, updates)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *GormAccountRepository) UpdateRole(ctx context.Context, id uint, role string) error {
	return r.updateByID(ctx, "update_role", id, map[string]any{"role": role, "updated_at": r.now().UTC()})
}

func (r *GormAccountRepository) SetBanned(ctx context.Context, id uint, banned bool) error {
	return r.updateByID(ctx, "set_banned", id, map[string]any{"banned": banned, "updated_at": r.now().UTC()})
}

func (r *GormAccountRepository) SetPassword(ctx context.Context, id uint, passwordHash string) error {
	return r.updateByID(ctx, "set_password", id, map[string]any{"password_hash": passwordHash, "updated_at": r.now().UTC()})
}

func (r *GormAccountRepository) SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return r.updateByID(ctx, "set_reset_token", id, map[string]any{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiresAt.UTC(),
		"updated_at":             r.now().UTC(),
	})
}

func (r *GormAccountRepository) ClearResetToken(ctx context.Context, id uint) error {
	return r.updateByID(ctx, "clear_reset_token", id, map[string]any{
		"reset_token_hash":       nil,
		"reset_token_expires_at": nil,
		"updated_at":             r.now().UTC(),
	})
}

// ConsumeResetToken swaps the password and clears the token in a single
// conditional update, so a token can only ever be redeemed once.
func (r *GormAccountRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uint, error) {
	now = now.UTC()
	var account domain.Account
	err := r.db.WithContext(ctx).
		Select("id").
		Where("reset_token_hash = ? AND reset_token_expires_at > ?", tokenHash, now).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "account", "consume_reset_token", "not_found")
			return 0, ErrResetTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "account", "consume_reset_token", "error")
		return 0, err
	}

	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND reset_token_hash = ? AND reset_token_expires_at > ?", account.ID, tokenHash, now).
		Updates(map[string]any{
			"password_hash":          passwordHash,
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
			"updated_at":             now,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "account", "consume_reset_token", "error")
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "account", "consume_reset_token", "not_found")
		return 0, ErrResetTokenNotFound
	}
	observability.RecordRepositoryOperation(ctx, "account", "consume_reset_token", "success")
	return account.ID, nil
}

func (r *GormAccountRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&domain.Account{}, id)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "account", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "account", "delete", "not_found")
		return ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(ctx, "account", "delete", "success")
	return nil
}

func (r *GormAccountRepository) ListPaged(ctx context.Context, query AccountListQuery) (PageResult[domain.Account], error) {
	page := query.PageRequest.Normalize()

	var total int64
	if err := r.listScope(ctx, query).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "list_paged", "error")
		return PageResult[domain.Account]{}, err
	}
	var items []domain.Account
	if err := r.listScope(ctx, query).Order(accountOrderClause(query.SortBy, query.SortOrder)).Offset(page.Offset()).Limit(page.PageSize).Find(&items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "list_paged", "error")
		return PageResult[domain.Account]{}, err
	}
	observability.RecordRepositoryOperation(ctx, "account", "list_paged", "success")
	return newPageResult(page, total, items), nil
}

func (r *GormAccountRepository) Stats(ctx context.Context, since time.Time) (AccountStats, error) {
	var stats AccountStats
	if err := r.visibleAccounts(ctx).Count(&stats.TotalAccounts).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "stats", "error")
		return AccountStats{}, err
	}
	if err := r.visibleAccounts(ctx).Where("created_at >= ?", since.UTC()).Count(&stats.AccountsCreatedSince).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "stats", "error")
		return AccountStats{}, err
	}
	observability.RecordRepositoryOperation(ctx, "account", "stats", "success")
	return stats, nil
}

// visibleAccounts excludes the super-admin, which is never listed or counted.
func (r *GormAccountRepository) visibleAccounts(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.Account{}).Where("super_admin_slot IS NULL")
}

func (r *GormAccountRepository) listScope(ctx context.Context, query AccountListQuery) *gorm.DB {
	scope := r.visibleAccounts(ctx)
	if email := NormalizeEmail(query.Email); email != "" {
		scope = scope.Where("email LIKE ?", "%"+email+"%")
	}
	if query.Role != "" {
		scope = scope.Where("role = ?", query.Role)
	}
	if query.Banned != nil {
		scope = scope.Where("banned = ?", *query.Banned)
	}
	return scope
}

func (r *GormAccountRepository) updateByID(ctx context.Context, op string, id uint, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "account", op, "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "account", op, "not_found")
		return ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(ctx, "account", op, "success")
	return nil
}

func (r *GormAccountRepository) lookupError(ctx context.Context, op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.RecordRepositoryOperation(ctx, "account", op, "not_found")
		return ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(ctx, "account", op, "error")
	return err
}

var accountSortColumns = map[string]string{
	"id":         "id",
	"email":      "email",
	"name":       "name",
	"created_at": "created_at",
}

func accountOrderClause(sortBy, sortOrder string) string {
	column, ok := accountSortColumns[sortBy]
	if !ok {
		column = "id"
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	return column + " " + sortOrder
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
