package loadgen

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	// Token is sent as a bearer token on requests that need a session.
	Token string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
}

type request struct {
	method string
	path   string
	body   string
	auth   bool
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	requests := requestsForProfile(cfg.Profile)
	if len(requests) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}
	if needsToken(requests) && cfg.Token == "" {
		return Result{}, fmt.Errorf("profile %s requires a bearer token", cfg.Profile)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(cfg.Seed))

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx int64
	jobs := make(chan request, cfg.Concurrency*2)
	wg := sync.WaitGroup{}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				req, err := http.NewRequestWithContext(ctx, job.method, baseURL+job.path, strings.NewReader(job.body))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				if job.body != "" {
					req.Header.Set("Content-Type", "application/json")
				}
				if job.auth {
					req.Header.Set("Authorization", "Bearer "+cfg.Token)
				}
				resp, err := client.Do(req)
				if err != nil {
					// requests cut off by the end of the run are not failures
					if ctx.Err() == nil {
						atomic.AddInt64(&failures, 1)
					}
					continue
				}
				_ = resp.Body.Close()
				atomic.AddInt64(&total, 1)
				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&s2xx, 1)
				case resp.StatusCode >= 400 && resp.StatusCode < 500:
					atomic.AddInt64(&s4xx, 1)
				case resp.StatusCode >= 500:
					atomic.AddInt64(&s5xx, 1)
				}
			}
		}()
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Result{
				TotalRequests: atomic.LoadInt64(&total),
				Failures:      atomic.LoadInt64(&failures),
				Status2xx:     atomic.LoadInt64(&s2xx),
				Status4xx:     atomic.LoadInt64(&s4xx),
				Status5xx:     atomic.LoadInt64(&s5xx),
			}, nil
		case <-ticker.C:
			select {
			case jobs <- requests[rng.Intn(len(requests))]:
			case <-ctx.Done():
			}
		}
	}
}

func requestsForProfile(profile string) []request {
	health := request{method: http.MethodGet, path: "/health/ready"}
	badLogin := request{method: http.MethodPost, path: "/api/v1/auth/login", body: `{"email":"loadgen@carspot.test","password":"Wr0ng$Password"}`}
	forgot := request{method: http.MethodPost, path: "/api/v1/auth/password/forgot", body: `{"email":"loadgen@carspot.test"}`}
	anonymousMe := request{method: http.MethodGet, path: "/api/v1/me"}
	badReset := request{method: http.MethodPost, path: "/api/v1/auth/password/reset/0000", body: `{"password":"Br4nd-New-Passw0rd"}`}
	me := request{method: http.MethodGet, path: "/api/v1/me", auth: true}
	listAccounts := request{method: http.MethodGet, path: "/api/v1/admin/accounts?page=1&page_size=20", auth: true}
	listBanned := request{method: http.MethodGet, path: "/api/v1/admin/accounts?banned=true&sort_by=email&sort_order=asc", auth: true}
	stats := request{method: http.MethodGet, path: "/api/v1/admin/stats", auth: true}

	switch strings.ToLower(profile) {
	case "", "mixed":
		return []request{health, badLogin, forgot, anonymousMe}
	case "auth":
		return []request{badLogin, forgot, badReset}
	case "error-heavy":
		return []request{badLogin, anonymousMe, badReset}
	case "admin":
		return []request{me, listAccounts, listBanned, stats}
	default:
		return nil
	}
}

func needsToken(requests []request) bool {
	for _, r := range requests {
		if r.auth {
			return true
		}
	}
	return false
}
