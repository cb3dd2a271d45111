package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	repogomock "github.com/sandeepkv93/carspot-identity-service/internal/repository/gomock"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
	"go.uber.org/mock/gomock"
)

const testSigningSecret = "0123456789abcdef0123456789abcdef"

type serviceFixture struct {
	cfg      *config.Config
	now      time.Time
	repo     *accountRepoState
	notifier *notifierState
	cache    *InMemoryAccountListCacheStore
	jwt      *security.JWTManager
	auth     *AuthService
	reset    *PasswordResetService
	accounts *AccountService
}

func newServiceFixture() *serviceFixture {
	cfg := &config.Config{
		JWTIssuer:               "carspot-identity-service",
		JWTAudience:             "carspot-api",
		JWTSigningSecret:        testSigningSecret,
		JWTAccessTTL:            3 * time.Hour,
		MasterAdminSecret:       testMasterSecret,
		MinRegistrationAge:      18,
		PasswordResetTokenTTL:   15 * time.Minute,
		PasswordResetBaseURL:    "https://carspot.test/reset-password/",
		AccountListCacheEnabled: true,
		AccountListCacheTTL:     time.Minute,
	}
	fx := &serviceFixture{
		cfg:      cfg,
		now:      time.Date(2026, time.June, 15, 9, 30, 0, 0, time.UTC),
		repo:     newAccountRepoState(),
		notifier: &notifierState{},
		cache:    NewInMemoryAccountListCacheStore(),
	}
	clock := func() time.Time { return fx.now }
	fx.cache.now = clock
	fx.repo.now = clock

	ctrl := gomock.NewController(tNop{})
	repoMock := repogomock.NewMockAccountRepository(ctrl)
	repoMock.EXPECT().FindByID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.FindByID)
	repoMock.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.FindByEmail)
	repoMock.EXPECT().FindSuperAdmin(gomock.Any()).AnyTimes().DoAndReturn(fx.repo.FindSuperAdmin)
	repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.Create)
	repoMock.EXPECT().UpdateProfile(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.UpdateProfile)
	repoMock.EXPECT().UpdateRole(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.UpdateRole)
	repoMock.EXPECT().SetBanned(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.SetBanned)
	repoMock.EXPECT().SetPassword(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.SetPassword)
	repoMock.EXPECT().SetResetToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.SetResetToken)
	repoMock.EXPECT().ClearResetToken(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.ClearResetToken)
	repoMock.EXPECT().ConsumeResetToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.ConsumeResetToken)
	repoMock.EXPECT().Delete(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.Delete)
	repoMock.EXPECT().ListPaged(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.ListPaged)
	repoMock.EXPECT().Stats(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.repo.Stats)

	notifierMock := NewMockNotifier(ctrl)
	notifierMock.EXPECT().Send(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(fx.notifier.Send)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := NewEscalationPolicy(cfg.MasterAdminSecret)
	fx.jwt = security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningSecret, cfg.JWTAccessTTL).WithClock(clock)

	fx.auth = NewAuthService(cfg, repoMock, fx.jwt, policy, fx.cache, logger)
	fx.auth.now = clock
	fx.reset = NewPasswordResetService(cfg, repoMock, notifierMock, logger)
	fx.reset.now = clock
	fx.accounts = NewAccountService(cfg, repoMock, policy, fx.cache, logger)
	fx.accounts.now = clock
	return fx
}

// seed stores an account directly, bypassing validation and hashing the
// given password.
func (fx *serviceFixture) seed(email, password, role string, superAdmin bool) *domain.Account {
	hash, err := security.HashPassword(password)
	if err != nil {
		panic(err)
	}
	a := &domain.Account{
		Name:         "Seeded " + email,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		DateOfBirth:  time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if superAdmin {
		a.ClaimSuperAdminSlot()
	}
	fx.repo.put(a)
	return a
}

type tNop struct{}

func (tNop) Errorf(string, ...any) {}
func (tNop) Fatalf(string, ...any) {}
func (tNop) Helper()               {}

type accountRepoState struct {
	mu       sync.Mutex
	nextID   uint
	byID     map[uint]*domain.Account
	listHits int
	now      func() time.Time

	createErr error
	listErr   error
}

func newAccountRepoState() *accountRepoState {
	return &accountRepoState{nextID: 1, byID: map[uint]*domain.Account{}, now: time.Now}
}

func (r *accountRepoState) put(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextID
	r.nextID++
	a.Email = repository.NormalizeEmail(a.Email)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	cp := *a
	r.byID[a.ID] = &cp
}

func (r *accountRepoState) get(id uint) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (r *accountRepoState) FindByID(_ context.Context, id uint) (*domain.Account, error) {
	if a := r.get(id); a != nil {
		return a, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (r *accountRepoState) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, a := range r.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *accountRepoState) FindSuperAdmin(_ context.Context) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.IsSuperAdmin {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *accountRepoState) Create(_ context.Context, account *domain.Account) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	account.Email = repository.NormalizeEmail(account.Email)
	hasSuper := false
	for _, a := range r.byID {
		if a.Email == account.Email {
			return repository.ErrDuplicateEmail
		}
		hasSuper = hasSuper || a.IsSuperAdmin
	}
	if hasSuper {
		account.ReleaseSuperAdminSlot()
	} else {
		account.ClaimSuperAdminSlot()
	}
	account.ID = r.nextID
	r.nextID++
	account.CreatedAt = r.now().UTC()
	account.UpdatedAt = account.CreatedAt
	cp := *account
	r.byID[account.ID] = &cp
	return nil
}

func (r *accountRepoState) mutate(id uint, fn func(*domain.Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	return fn(a)
}

func (r *accountRepoState) UpdateProfile(_ context.Context, id uint, update repository.AccountProfileUpdate) error {
	if update.Email != nil {
		if other, err := r.FindByEmail(context.Background(), *update.Email); err == nil && other.ID != id {
			return repository.ErrDuplicateEmail
		}
	}
	return r.mutate(id, func(a *domain.Account) error {
		if update.Name != nil {
			a.Name = *update.Name
		}
		if update.Email != nil {
			a.Email = repository.NormalizeEmail(*update.Email)
		}
		return nil
	})
}

func (r *accountRepoState) UpdateRole(_ context.Context, id uint, role string) error {
	return r.mutate(id, func(a *domain.Account) error { a.Role = role; return nil })
}

func (r *accountRepoState) SetBanned(_ context.Context, id uint, banned bool) error {
	return r.mutate(id, func(a *domain.Account) error { a.Banned = banned; return nil })
}

func (r *accountRepoState) SetPassword(_ context.Context, id uint, hash string) error {
	return r.mutate(id, func(a *domain.Account) error { a.PasswordHash = hash; return nil })
}

func (r *accountRepoState) SetResetToken(_ context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return r.mutate(id, func(a *domain.Account) error {
		a.ResetTokenHash = &tokenHash
		a.ResetTokenExpiresAt = &expiresAt
		return nil
	})
}

func (r *accountRepoState) ClearResetToken(_ context.Context, id uint) error {
	return r.mutate(id, func(a *domain.Account) error {
		a.ResetTokenHash = nil
		a.ResetTokenExpiresAt = nil
		return nil
	})
}

func (r *accountRepoState) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.ResetTokenHash != nil && *a.ResetTokenHash == tokenHash && a.ResetTokenExpiresAt.After(now) {
			a.PasswordHash = passwordHash
			a.ResetTokenHash = nil
			a.ResetTokenExpiresAt = nil
			return a.ID, nil
		}
	}
	return 0, repository.ErrResetTokenNotFound
}

func (r *accountRepoState) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *accountRepoState) ListPaged(_ context.Context, query repository.AccountListQuery) (repository.PageResult[domain.Account], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listHits++
	if r.listErr != nil {
		return repository.PageResult[domain.Account]{}, r.listErr
	}
	page := query.PageRequest.Normalize()
	visible := make([]domain.Account, 0, len(r.byID))
	for _, a := range r.byID {
		if a.IsSuperAdmin || (query.Role != "" && a.Role != query.Role) {
			continue
		}
		visible = append(visible, *a)
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })
	start := min(page.Offset(), len(visible))
	end := min(start+page.PageSize, len(visible))
	total := int64(len(visible))
	return repository.PageResult[domain.Account]{
		Items:      visible[start:end],
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: int((total + int64(page.PageSize) - 1) / int64(page.PageSize)),
	}, nil
}

func (r *accountRepoState) Stats(_ context.Context, since time.Time) (repository.AccountStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats repository.AccountStats
	for _, a := range r.byID {
		if a.IsSuperAdmin {
			continue
		}
		stats.TotalAccounts++
		if !a.CreatedAt.Before(since) {
			stats.AccountsCreatedSince++
		}
	}
	return stats, nil
}

type notifierState struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *notifierState) Send(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *notifierState) last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return Notification{}, false
	}
	return n.sent[len(n.sent)-1], true
}
