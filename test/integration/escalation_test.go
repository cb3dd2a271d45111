package integration

import (
	"fmt"
	"net/http"
	"testing"
)

func TestPrivilegeEscalationOverHTTP(t *testing.T) {
	s := newCarSpotServer(t, serverOptions{})
	s.register(t, "e1@carspot.test", "1985-01-01")
	e2 := s.register(t, "e2@carspot.test", "1986-01-01")
	e3 := s.register(t, "e3@carspot.test", "1987-01-01")
	e1Token := s.login(t, "e1@carspot.test", testPassword)

	rolePath := func(id uint) string { return fmt.Sprintf("/api/v1/admin/accounts/%d/role", id) }

	resp, env := s.do(t, http.MethodPatch, rolePath(e2.ID), e1Token, map[string]string{"role": "admin"}, nil)
	if resp.StatusCode != http.StatusForbidden || env.code() != "MASTER_SECRET_REQUIRED" {
		t.Fatalf("promotion without secret: got %d %s", resp.StatusCode, env.code())
	}
	resp, env = s.do(t, http.MethodPatch, rolePath(e2.ID), e1Token, map[string]string{"role": "admin", "master_secret": "wrong-secret"}, nil)
	if resp.StatusCode != http.StatusForbidden || env.code() != "MASTER_SECRET_INVALID" {
		t.Fatalf("promotion with wrong secret: got %d %s", resp.StatusCode, env.code())
	}
	resp, env = s.do(t, http.MethodPatch, rolePath(e2.ID), e1Token, map[string]string{"role": "admin", "master_secret": testMasterSecret}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote e2: got %d %s", resp.StatusCode, env.code())
	}
	resp, env = s.do(t, http.MethodPatch, rolePath(e3.ID), e1Token, map[string]string{"role": "admin"}, map[string]string{"X-Master-Secret": testMasterSecret})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote e3 via header: got %d %s", resp.StatusCode, env.code())
	}

	e2Token := s.login(t, "e2@carspot.test", testPassword)
	deletePath := fmt.Sprintf("/api/v1/admin/accounts/%d", e3.ID)
	resp, env = s.do(t, http.MethodDelete, deletePath, e2Token, nil, nil)
	if resp.StatusCode != http.StatusForbidden || env.code() != "MASTER_SECRET_REQUIRED" {
		t.Fatalf("admin deleting admin without secret: got %d %s", resp.StatusCode, env.code())
	}
	resp, env = s.do(t, http.MethodDelete, deletePath, e2Token, map[string]string{"master_secret": testMasterSecret}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin deleting admin with secret: got %d %s", resp.StatusCode, env.code())
	}
	resp, _ = s.do(t, http.MethodGet, deletePath, e1Token, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected deleted account to be gone, got %d", resp.StatusCode)
	}
}

func TestSuperAdminCannotBeTargeted(t *testing.T) {
	s := newCarSpotServer(t, serverOptions{})
	owner := s.register(t, "owner@carspot.test", "1980-01-01")
	admin := s.register(t, "admin@carspot.test", "1985-01-01")
	ownerToken := s.login(t, "owner@carspot.test", testPassword)
	resp, _ := s.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/accounts/%d/role", admin.ID), ownerToken, map[string]string{"role": "admin", "master_secret": testMasterSecret}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote admin: got %d", resp.StatusCode)
	}
	adminToken := s.login(t, "admin@carspot.test", testPassword)

	for _, tc := range []struct {
		method string
		path   string
		body   map[string]string
	}{
		{http.MethodPost, fmt.Sprintf("/api/v1/admin/accounts/%d/ban", owner.ID), map[string]string{"master_secret": testMasterSecret}},
		{http.MethodPatch, fmt.Sprintf("/api/v1/admin/accounts/%d/role", owner.ID), map[string]string{"role": "admin", "master_secret": testMasterSecret}},
		{http.MethodDelete, fmt.Sprintf("/api/v1/admin/accounts/%d", owner.ID), map[string]string{"master_secret": testMasterSecret}},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, env := s.do(t, tc.method, tc.path, adminToken, tc.body, nil)
			if resp.StatusCode != http.StatusForbidden || env.code() != "TARGET_SUPER_ADMIN" {
				t.Fatalf("expected 403 TARGET_SUPER_ADMIN, got %d %s", resp.StatusCode, env.code())
			}
		})
	}

	resp, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/accounts/%d", owner.ID), adminToken, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected super-admin to be hidden, got %d", resp.StatusCode)
	}
}

func TestBanTakesEffectOnNextRequest(t *testing.T) {
	s := newCarSpotServer(t, serverOptions{})
	s.register(t, "owner@carspot.test", "1980-01-01")
	driver := s.register(t, "driver@carspot.test", "1990-01-01")
	ownerToken := s.login(t, "owner@carspot.test", testPassword)
	driverToken := s.login(t, "driver@carspot.test", testPassword)

	if resp, _ := s.do(t, http.MethodGet, "/api/v1/me", driverToken, nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected driver to reach profile before ban, got %d", resp.StatusCode)
	}
	resp, env := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/accounts/%d/ban", driver.ID), ownerToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ban: got %d %s", resp.StatusCode, env.code())
	}

	resp, env = s.do(t, http.MethodGet, "/api/v1/me", driverToken, nil, nil)
	if resp.StatusCode != http.StatusForbidden || env.code() != "ACCOUNT_BANNED" {
		t.Fatalf("expected existing token to be rejected, got %d %s", resp.StatusCode, env.code())
	}
	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "driver@carspot.test", "password": testPassword}, nil)
	if resp.StatusCode != http.StatusForbidden || env.code() != "ACCOUNT_BANNED" {
		t.Fatalf("expected banned login to fail, got %d %s", resp.StatusCode, env.code())
	}

	resp, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/accounts/%d/unban", driver.ID), ownerToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unban: got %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, http.MethodGet, "/api/v1/me", driverToken, nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected token to work again after unban, got %d", resp.StatusCode)
	}
}

func TestDemotionRevokesAdminAccessImmediately(t *testing.T) {
	s := newCarSpotServer(t, serverOptions{})
	s.register(t, "owner@carspot.test", "1980-01-01")
	admin := s.register(t, "admin@carspot.test", "1985-01-01")
	ownerToken := s.login(t, "owner@carspot.test", testPassword)
	rolePath := fmt.Sprintf("/api/v1/admin/accounts/%d/role", admin.ID)
	if resp, _ := s.do(t, http.MethodPatch, rolePath, ownerToken, map[string]string{"role": "admin", "master_secret": testMasterSecret}, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("promote: got %d", resp.StatusCode)
	}
	adminToken := s.login(t, "admin@carspot.test", testPassword)
	if resp, _ := s.do(t, http.MethodGet, "/api/v1/admin/stats", adminToken, nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected admin to reach stats, got %d", resp.StatusCode)
	}

	if resp, _ := s.do(t, http.MethodPatch, rolePath, ownerToken, map[string]string{"role": "user"}, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("demote: got %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, http.MethodGet, "/api/v1/admin/stats", adminToken, nil, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected demoted token to lose admin access, got %d", resp.StatusCode)
	}
}
