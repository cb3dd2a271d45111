package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/database"
	"github.com/sandeepkv93/carspot-identity-service/internal/health"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/handler"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/router"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
	"github.com/sandeepkv93/carspot-identity-service/internal/service"
)

const (
	testMasterSecret = "master-secret-value"
	testPassword     = "Sup3r$ecretPass"
	resetBaseURL     = "https://carspot.test/reset-password"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e apiEnvelope) code() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []service.Notification
}

func (n *captureNotifier) Send(_ context.Context, msg service.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) lastResetToken(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no notification captured")
	}
	body := n.sent[len(n.sent)-1].Body
	idx := strings.Index(body, resetBaseURL+"/")
	if idx < 0 {
		t.Fatalf("reset link missing: %q", body)
	}
	token := body[idx+len(resetBaseURL)+1:]
	if end := strings.IndexAny(token, " \n"); end >= 0 {
		token = token[:end]
	}
	return token
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type serverOptions struct {
	cfgOverride func(cfg *config.Config)
	db          *gorm.DB
	cache       service.AccountListCacheStore
}

type carspotServer struct {
	baseURL  string
	client   *http.Client
	db       *gorm.DB
	notifier *captureNotifier
}

func newCarSpotServer(t *testing.T, opts serverOptions) *carspotServer {
	t.Helper()

	db := opts.db
	if db == nil {
		name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
		var err error
		db, err = database.OpenDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), logger.Silent)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		sqlDB, _ := db.DB()
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Env:                     "test",
		JWTIssuer:               "carspot-identity-service",
		JWTAudience:             "carspot-api",
		JWTSigningSecret:        "abcdefghijklmnopqrstuvwxyz123456",
		JWTAccessTTL:            3 * time.Hour,
		MasterAdminSecret:       testMasterSecret,
		MinRegistrationAge:      18,
		PasswordResetTokenTTL:   15 * time.Minute,
		PasswordResetBaseURL:    resetBaseURL,
		AccountListCacheEnabled: true,
		AccountListCacheTTL:     time.Minute,
		ReadinessProbeTimeout:   time.Second,
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &captureNotifier{}
	cache := opts.cache
	if cache == nil {
		cache = service.NewInMemoryAccountListCacheStore()
	}

	accounts := repository.NewAccountRepository(db)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningSecret, cfg.JWTAccessTTL)
	policy := service.NewEscalationPolicy(cfg.MasterAdminSecret)
	authSvc := service.NewAuthService(cfg, accounts, jwtMgr, policy, cache, logger)
	resetSvc := service.NewPasswordResetService(cfg, accounts, notifier, logger)
	accountSvc := service.NewAccountService(cfg, accounts, policy, cache, logger)

	r := router.NewRouter(router.Dependencies{
		AuthHandler:  handler.NewAuthHandler(authSvc, resetSvc),
		UserHandler:  handler.NewUserHandler(accountSvc),
		AdminHandler: handler.NewAdminHandler(accountSvc),
		JWTManager:   jwtMgr,
		Accounts:     accounts,
		CORSOrigins:  []string{"http://localhost"},
		Readiness:    health.NewProbeRunner(time.Second, 0, health.NewDBChecker(db)),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &carspotServer{baseURL: srv.URL, client: srv.Client(), db: db, notifier: notifier}
}

type accountView struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	IsSuperAdmin bool   `json:"is_super_admin"`
	Banned       bool   `json:"banned"`
}

func (s *carspotServer) register(t *testing.T, email, dob string) accountView {
	t.Helper()
	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":          "Jordan Driver",
		"email":         email,
		"password":      testPassword,
		"date_of_birth": dob,
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register %s failed: status=%d code=%s", email, resp.StatusCode, env.code())
	}
	var account accountView
	decodeData(t, env, &account)
	return account
}

func (s *carspotServer) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login %s failed: status=%d code=%s", email, resp.StatusCode, env.code())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeData(t, env, &out)
	if out.AccessToken == "" {
		t.Fatal("expected access token")
	}
	return out.AccessToken
}

func (s *carspotServer) do(t *testing.T, method, path, token string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	var payload io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.baseURL+path, payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env apiEnvelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp, env
}

func decodeData(t *testing.T, env apiEnvelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}
