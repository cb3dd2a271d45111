package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/response"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/service"
)

const masterSecretHeader = "X-Master-Secret"

var accountSortFields = map[string]struct{}{
	"id":         {},
	"email":      {},
	"name":       {},
	"created_at": {},
}

type AdminHandler struct {
	accountSvc service.AccountServiceInterface
}

func NewAdminHandler(accountSvc service.AccountServiceInterface) *AdminHandler {
	return &AdminHandler{accountSvc: accountSvc}
}

type changeRoleRequest struct {
	Role         string `json:"role"`
	MasterSecret string `json:"master_secret"`
}

type masterSecretRequest struct {
	MasterSecret string `json:"master_secret"`
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAdminListRequestDuration(r.Context(), "accounts", status, time.Since(start))
	}()

	query, err := parseAccountListQuery(r)
	if err != nil {
		status = "bad_request"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	observability.RecordAdminListPageSize(r.Context(), "accounts", query.PageSize)
	page, err := h.accountSvc.List(r.Context(), query)
	if err != nil {
		status = "error"
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	account, err := h.accountSvc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.mutationTarget(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	account, err := h.accountSvc.ChangeRole(r.Context(), actor, id, req.Role, masterSecret(r, req.MasterSecret))
	h.auditMutation(r, actor, id, "change_role", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *AdminHandler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	actor, id, ok := h.mutationTarget(w, r)
	if !ok {
		return
	}
	var req masterSecretRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	account, err := h.accountSvc.SetBanned(r.Context(), actor, id, banned, masterSecret(r, req.MasterSecret))
	h.auditMutation(r, actor, id, string(service.BanMutationKind(banned)), err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.mutationTarget(w, r)
	if !ok {
		return
	}
	var req masterSecretRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	err := h.accountSvc.Delete(r.Context(), actor, id, masterSecret(r, req.MasterSecret))
	h.auditMutation(r, actor, id, string(service.MutationDelete), err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accountSvc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}

func (h *AdminHandler) mutationTarget(w http.ResponseWriter, r *http.Request) (*domain.Account, uint, bool) {
	actor, ok := currentAccount(w, r)
	if !ok {
		return nil, 0, false
	}
	id, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return nil, 0, false
	}
	return actor, id, true
}

func (h *AdminHandler) auditMutation(r *http.Request, actor *domain.Account, targetID uint, action string, err error) {
	in := observability.AuditInput{
		EventName:   "admin.account." + action,
		ActorUserID: accountIDString(actor.ID),
		TargetType:  "account",
		TargetID:    accountIDString(targetID),
		Action:      action,
		Outcome:     "success",
	}
	if err != nil {
		typed := service.AsError(err)
		in.Outcome = "failure"
		in.Reason = typed.Code
		if typed.Kind == service.KindForbidden {
			in.EventName = "escalation.denied"
			in.Outcome = "denied"
		}
	}
	observability.Audit(r, in)
}

// masterSecret prefers the header so DELETE requests need no body.
func masterSecret(r *http.Request, fromBody string) string {
	if v := strings.TrimSpace(r.Header.Get(masterSecretHeader)); v != "" {
		return v
	}
	return fromBody
}

func parseAccountListQuery(r *http.Request) (repository.AccountListQuery, error) {
	page, err := parsePageRequest(r)
	if err != nil {
		return repository.AccountListQuery{}, err
	}
	sortBy, sortOrder, err := parseSortParams(r, "created_at", accountSortFields)
	if err != nil {
		return repository.AccountListQuery{}, err
	}
	q := r.URL.Query()
	query := repository.AccountListQuery{
		PageRequest: page,
		SortBy:      sortBy,
		SortOrder:   sortOrder,
		Email:       strings.TrimSpace(q.Get("email")),
	}
	if role := strings.ToLower(strings.TrimSpace(q.Get("role"))); role != "" {
		if !domain.IsValidRole(role) {
			return repository.AccountListQuery{}, fmt.Errorf("invalid role: %s", role)
		}
		query.Role = role
	}
	if raw := strings.TrimSpace(q.Get("banned")); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			return repository.AccountListQuery{}, errors.New("banned must be true or false")
		}
		query.Banned = &banned
	}
	return query, nil
}

func parsePageRequest(r *http.Request) (repository.PageRequest, error) {
	page := repository.DefaultPage
	pageSize := repository.DefaultPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("page must be a positive integer")
		}
		page = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return repository.PageRequest{}, errors.New("page_size must be a positive integer")
		}
		if v > repository.MaxPageSize {
			return repository.PageRequest{}, fmt.Errorf("page_size must be <= %d", repository.MaxPageSize)
		}
		pageSize = v
	}
	return repository.PageRequest{Page: page, PageSize: pageSize}, nil
}

func parseSortParams(r *http.Request, defaultField string, allowed map[string]struct{}) (string, string, error) {
	sortBy := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sort_by")))
	if sortBy == "" {
		sortBy = defaultField
	}
	if _, ok := allowed[sortBy]; !ok {
		return "", "", fmt.Errorf("invalid sort_by: %s", sortBy)
	}

	sortOrder := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sort_order")))
	if sortOrder == "" {
		sortOrder = "desc"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		return "", "", errors.New("sort_order must be asc or desc")
	}
	return sortBy, sortOrder, nil
}
