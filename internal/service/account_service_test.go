package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
)

func TestPrivilegeEscalationScenario(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	e1, err := fx.auth.Register(ctx, registerInput("e1@carspot.test", "1985-01-01"))
	if err != nil {
		t.Fatalf("register e1: %v", err)
	}
	if !e1.IsSuperAdmin {
		t.Fatal("expected e1 to be super-admin")
	}
	e2, err := fx.auth.Register(ctx, registerInput("e2@carspot.test", "1986-01-01"))
	if err != nil {
		t.Fatalf("register e2: %v", err)
	}
	if e2.IsSuperAdmin || e2.Role != domain.RoleUser {
		t.Fatalf("unexpected e2 state: super=%v role=%s", e2.IsSuperAdmin, e2.Role)
	}

	if _, err := fx.accounts.ChangeRole(ctx, e1, e2.ID, domain.RoleAdmin, "wrong-secret"); !errors.Is(err, ErrMasterSecretInvalid) {
		t.Fatalf("expected invalid master secret, got %v", err)
	}
	if got := fx.repo.get(e2.ID); got.Role != domain.RoleUser {
		t.Fatalf("expected role unchanged after denial, got %s", got.Role)
	}
	promoted, err := fx.accounts.ChangeRole(ctx, e1, e2.ID, domain.RoleAdmin, testMasterSecret)
	if err != nil {
		t.Fatalf("promote e2: %v", err)
	}
	if promoted.Role != domain.RoleAdmin || fx.repo.get(e2.ID).Role != domain.RoleAdmin {
		t.Fatal("expected e2 to be admin")
	}

	e3, err := fx.auth.Register(ctx, registerInput("e3@carspot.test", "1987-01-01"))
	if err != nil {
		t.Fatalf("register e3: %v", err)
	}
	if _, err := fx.accounts.ChangeRole(ctx, e1, e3.ID, domain.RoleAdmin, testMasterSecret); err != nil {
		t.Fatalf("promote e3: %v", err)
	}

	actor := fx.repo.get(e2.ID)
	if err := fx.accounts.Delete(ctx, actor, e3.ID, ""); !errors.Is(err, ErrMasterSecretRequired) {
		t.Fatalf("expected master secret required, got %v", err)
	}
	if fx.repo.get(e3.ID) == nil {
		t.Fatal("expected e3 to survive the denied delete")
	}
	if err := fx.accounts.Delete(ctx, actor, e3.ID, testMasterSecret); err != nil {
		t.Fatalf("delete e3: %v", err)
	}
	if fx.repo.get(e3.ID) != nil {
		t.Fatal("expected e3 to be removed")
	}
}

func TestSuperAdminIsNeverAValidTarget(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	super := fx.seed("owner@carspot.test", strongPassword, domain.RoleUser, true)
	admin := fx.seed("admin@carspot.test", strongPassword, domain.RoleAdmin, false)

	actors := map[string]*domain.Account{"super": super, "admin": admin}
	for name, actor := range actors {
		t.Run(name, func(t *testing.T) {
			if _, err := fx.accounts.ChangeRole(ctx, actor, super.ID, domain.RoleAdmin, testMasterSecret); !errors.Is(err, ErrTargetSuperAdmin) {
				t.Fatalf("change role: expected target super admin, got %v", err)
			}
			if _, err := fx.accounts.SetBanned(ctx, actor, super.ID, true, testMasterSecret); !errors.Is(err, ErrTargetSuperAdmin) {
				t.Fatalf("ban: expected target super admin, got %v", err)
			}
			if err := fx.accounts.Delete(ctx, actor, super.ID, testMasterSecret); !errors.Is(err, ErrTargetSuperAdmin) {
				t.Fatalf("delete: expected target super admin, got %v", err)
			}
		})
	}
	if got := fx.repo.get(super.ID); got == nil || got.Banned {
		t.Fatal("expected super-admin untouched")
	}
}

func TestAdminMutations(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	fx.seed("owner@carspot.test", strongPassword, domain.RoleUser, true)
	admin := fx.seed("admin@carspot.test", strongPassword, domain.RoleAdmin, false)
	user := fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)
	other := fx.seed("other@carspot.test", strongPassword, domain.RoleUser, false)

	banned, err := fx.accounts.SetBanned(ctx, admin, user.ID, true, "")
	if err != nil {
		t.Fatalf("admin bans user: %v", err)
	}
	if !banned.Banned || !fx.repo.get(user.ID).Banned {
		t.Fatal("expected user to be banned")
	}
	if _, err := fx.accounts.SetBanned(ctx, admin, user.ID, true, ""); err != nil {
		t.Fatalf("repeat ban should be a no-op: %v", err)
	}
	if _, err := fx.accounts.ChangeRole(ctx, admin, user.ID, "superuser", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := fx.accounts.ChangeRole(ctx, fx.repo.get(other.ID), user.ID, domain.RoleAdmin, testMasterSecret); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected plain user to be denied, got %v", err)
	}
	if _, err := fx.accounts.SetBanned(ctx, admin, 9999, true, ""); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := fx.accounts.Delete(ctx, nil, user.ID, ""); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected nil actor to be denied, got %v", err)
	}
}

func TestGetHidesSuperAdmin(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	super := fx.seed("owner@carspot.test", strongPassword, domain.RoleUser, true)
	user := fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)

	if _, err := fx.accounts.Get(ctx, super.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected super-admin to be hidden, got %v", err)
	}
	got, err := fx.accounts.Get(ctx, user.ID)
	if err != nil || got.ID != user.ID {
		t.Fatalf("get user: %v", err)
	}
	profile, err := fx.accounts.Profile(ctx, super.ID)
	if err != nil || !profile.IsSuperAdmin {
		t.Fatalf("expected super-admin to read own profile: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	user := fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)
	fx.seed("taken@carspot.test", strongPassword, domain.RoleUser, false)

	name := "  Renamed Driver "
	updated, err := fx.accounts.UpdateProfile(ctx, user.ID, ProfileUpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if updated.Name != "Renamed Driver" {
		t.Fatalf("expected trimmed name, got %q", updated.Name)
	}

	taken := "TAKEN@carspot.test"
	if _, err := fx.accounts.UpdateProfile(ctx, user.ID, ProfileUpdateInput{Email: &taken}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	bad := "not-an-email"
	if _, err := fx.accounts.UpdateProfile(ctx, user.ID, ProfileUpdateInput{Email: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := fx.accounts.UpdateProfile(ctx, user.ID, ProfileUpdateInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty update to be rejected, got %v", err)
	}
	if _, err := fx.accounts.UpdateProfile(ctx, 9999, ProfileUpdateInput{Name: &name}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListCachesPagesAndInvalidatesOnMutation(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	super := fx.seed("owner@carspot.test", strongPassword, domain.RoleUser, true)
	user := fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)
	fx.seed("user2@carspot.test", strongPassword, domain.RoleUser, false)

	query := repository.AccountListQuery{PageRequest: repository.PageRequest{Page: 1, PageSize: 10}}
	first, err := fx.accounts.List(ctx, query)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if first.Total != 2 || len(first.Items) != 2 {
		t.Fatalf("expected two visible accounts, got total=%d items=%d", first.Total, len(first.Items))
	}
	for _, a := range first.Items {
		if a.IsSuperAdmin {
			t.Fatal("super-admin must not be listed")
		}
	}
	if _, err := fx.accounts.List(ctx, query); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if fx.repo.listHits != 1 {
		t.Fatalf("expected second list to be served from cache, repo hits=%d", fx.repo.listHits)
	}

	if _, err := fx.accounts.SetBanned(ctx, super, user.ID, true, ""); err != nil {
		t.Fatalf("ban: %v", err)
	}
	after, err := fx.accounts.List(ctx, query)
	if err != nil {
		t.Fatalf("list after ban: %v", err)
	}
	if fx.repo.listHits != 2 {
		t.Fatalf("expected mutation to invalidate the cache, repo hits=%d", fx.repo.listHits)
	}
	for _, a := range after.Items {
		if a.ID == user.ID && !a.Banned {
			t.Fatal("expected refreshed page to show the ban")
		}
	}

	fx.now = fx.now.Add(2 * time.Minute)
	if _, err := fx.accounts.List(ctx, query); err != nil {
		t.Fatalf("list after expiry: %v", err)
	}
	if fx.repo.listHits != 3 {
		t.Fatalf("expected expired entry to be reloaded, repo hits=%d", fx.repo.listHits)
	}
}

func TestRegisterInvalidatesCachedListPages(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	fx.seed("owner@carspot.test", strongPassword, domain.RoleUser, true)
	fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)

	query := repository.AccountListQuery{PageRequest: repository.PageRequest{Page: 1, PageSize: 10}}
	for range 2 {
		if _, err := fx.accounts.List(ctx, query); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if fx.repo.listHits != 1 {
		t.Fatalf("expected the page to be cached, repo hits=%d", fx.repo.listHits)
	}

	if _, err := fx.auth.Register(ctx, registerInput("late@carspot.test", "1990-01-01")); err != nil {
		t.Fatalf("register: %v", err)
	}
	after, err := fx.accounts.List(ctx, query)
	if err != nil {
		t.Fatalf("list after register: %v", err)
	}
	if fx.repo.listHits != 2 {
		t.Fatalf("expected registration to invalidate the cache, repo hits=%d", fx.repo.listHits)
	}
	if after.Total != 2 {
		t.Fatalf("expected the new account to be listed, total=%d", after.Total)
	}
}

func TestRegisterFailureKeepsCachedListPages(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)

	query := repository.AccountListQuery{PageRequest: repository.PageRequest{Page: 1, PageSize: 10}}
	if _, err := fx.accounts.List(ctx, query); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := fx.auth.Register(ctx, registerInput("user@carspot.test", "1990-01-01")); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if _, err := fx.accounts.List(ctx, query); err != nil {
		t.Fatalf("list: %v", err)
	}
	if fx.repo.listHits != 1 {
		t.Fatalf("expected failed registration to leave the cache alone, repo hits=%d", fx.repo.listHits)
	}
}

func TestListCollapsesConcurrentMisses(t *testing.T) {
	fx := newServiceFixture()
	fx.seed("user@carspot.test", strongPassword, domain.RoleUser, false)
	query := repository.AccountListQuery{PageRequest: repository.PageRequest{Page: 1, PageSize: 5}}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fx.accounts.List(context.Background(), query); err != nil {
				t.Errorf("list: %v", err)
			}
		}()
	}
	wg.Wait()

	fx.repo.mu.Lock()
	hits := fx.repo.listHits
	fx.repo.mu.Unlock()
	if hits < 1 || hits > 8 {
		t.Fatalf("unexpected repository hits %d", hits)
	}
	if _, err := fx.accounts.List(context.Background(), query); err != nil {
		t.Fatalf("list: %v", err)
	}
	fx.repo.mu.Lock()
	defer fx.repo.mu.Unlock()
	if fx.repo.listHits != hits {
		t.Fatalf("expected warm cache after concurrent load, hits went %d -> %d", hits, fx.repo.listHits)
	}
}

func TestListRepositoryFailureIsInternal(t *testing.T) {
	fx := newServiceFixture()
	fx.repo.listErr = errors.New("connection reset")
	_, err := fx.accounts.List(context.Background(), repository.AccountListQuery{})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestListWithCacheDisabledAlwaysQueries(t *testing.T) {
	fx := newServiceFixture()
	fx.accounts.cacheTTL = 0
	for range 3 {
		if _, err := fx.accounts.List(context.Background(), repository.AccountListQuery{}); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if fx.repo.listHits != 3 {
		t.Fatalf("expected every list to hit the repository, got %d", fx.repo.listHits)
	}
}

func TestStatsCountsAccountsCreatedToday(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()
	fx.seed("owner@carspot.test", strongPassword, domain.RoleUser, true)

	yesterday := &domain.Account{Email: "old@carspot.test", Role: domain.RoleUser, CreatedAt: fx.now.Add(-24 * time.Hour)}
	fx.repo.put(yesterday)
	fx.seed("today@carspot.test", strongPassword, domain.RoleUser, false)

	stats, err := fx.accounts.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAccounts != 2 || stats.AccountsCreatedSince != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAccountListCacheKeyDistinguishesFilters(t *testing.T) {
	banned := true
	base := repository.AccountListQuery{PageRequest: repository.PageRequest{Page: 1, PageSize: 20}}
	withRole := base
	withRole.Role = domain.RoleAdmin
	withBanned := base
	withBanned.Banned = &banned

	keys := map[string]bool{}
	for _, q := range []repository.AccountListQuery{base, withRole, withBanned} {
		keys[accountListCacheKey(q)] = true
	}
	if len(keys) != 3 {
		t.Fatalf("expected distinct cache keys, got %v", keys)
	}
}
