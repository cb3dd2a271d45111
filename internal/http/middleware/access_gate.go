package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/response"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
)

type contextKey string

const AccountContextKey contextKey = "account"

// AccessGate authenticates the bearer token and reloads the account it names.
// Role and ban state always come from the reloaded row, so a demotion or ban
// takes effect on the very next request even while the token is still valid.
func AccessGate(jwtMgr *security.JWTManager, accounts repository.AccountRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := security.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				observability.RecordAccessGateDecision(ctx, "authenticate", "missing_token")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				observability.RecordAccessGateDecision(ctx, "authenticate", "invalid_token")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			id, err := claims.AccountID()
			if err != nil {
				observability.RecordAccessGateDecision(ctx, "authenticate", "invalid_subject")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			account, err := accounts.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrAccountNotFound) {
					observability.RecordAccessGateDecision(ctx, "authenticate", "account_gone")
					response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "account no longer exists", nil)
					return
				}
				observability.RecordAccessGateDecision(ctx, "authenticate", "lookup_error")
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
				return
			}
			if account.Banned {
				observability.RecordAccessGateDecision(ctx, "authenticate", "banned")
				observability.Audit(r, observability.AuditInput{
					EventName:   "auth.access.denied",
					ActorUserID: strconv.FormatUint(uint64(account.ID), 10),
					TargetType:  "account",
					Action:      "authenticate",
					Outcome:     "denied",
					Reason:      "banned",
				})
				response.Error(w, r, http.StatusForbidden, "ACCOUNT_BANNED", "Your account has been banned. Please contact the admin", nil)
				return
			}
			observability.RecordAccessGateDecision(ctx, "authenticate", "allow")
			rememberAccount(ctx, account)
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, AccountContextKey, account)))
		})
	}
}

// RequireCapability must run behind AccessGate.
func RequireCapability(capability domain.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := AccountFromContext(r.Context())
			if !ok {
				observability.RecordAccessGateDecision(r.Context(), string(capability), "missing_account")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			if !account.HasCapability(capability) {
				observability.RecordAccessGateDecision(r.Context(), string(capability), "forbidden")
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient privileges", map[string]string{"required": string(capability)})
				return
			}
			observability.RecordAccessGateDecision(r.Context(), string(capability), "allow")
			next.ServeHTTP(w, r)
		})
	}
}

func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	a, ok := ctx.Value(AccountContextKey).(*domain.Account)
	return a, ok && a != nil
}
