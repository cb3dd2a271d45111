package handler

import (
	"net/http"

	"github.com/sandeepkv93/carspot-identity-service/internal/http/response"
	"github.com/sandeepkv93/carspot-identity-service/internal/service"
)

type UserHandler struct {
	accountSvc service.AccountServiceInterface
}

func NewUserHandler(accountSvc service.AccountServiceInterface) *UserHandler {
	return &UserHandler{accountSvc: accountSvc}
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentAccount(w, r)
	if !ok {
		return
	}
	account, err := h.accountSvc.Profile(r.Context(), actor.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	account, err := h.accountSvc.UpdateProfile(r.Context(), actor.ID, service.ProfileUpdateInput{Name: req.Name, Email: req.Email})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}
