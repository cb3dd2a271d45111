package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/carspot-identity-service/internal/http/response"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/service"
)

const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent"

type AuthHandler struct {
	authSvc  service.AuthServiceInterface
	resetSvc service.PasswordResetServiceInterface
}

func NewAuthHandler(authSvc service.AuthServiceInterface, resetSvc service.PasswordResetServiceInterface) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, resetSvc: resetSvc}
}

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DateOfBirth string `json:"date_of_birth"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var req registerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		status = "failure"
		writeDecodeError(w, r, err)
		return
	}
	account, err := h.authSvc.Register(r.Context(), service.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		DateOfBirth: req.DateOfBirth,
	})
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName:  "auth.register",
			TargetType: "account",
			Action:     "register",
			Outcome:    "failure",
			Reason:     service.AsError(err).Code,
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   "auth.register",
		ActorUserID: accountIDString(account.ID),
		TargetType:  "account",
		TargetID:    accountIDString(account.ID),
		Action:      "register",
		Outcome:     "success",
	})
	response.JSON(w, r, http.StatusCreated, account)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		status = "failure"
		writeDecodeError(w, r, err)
		return
	}
	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName:  "auth.login",
			TargetType: "account",
			Action:     "login",
			Outcome:    "failure",
			Reason:     service.AsError(err).Code,
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   "auth.login",
		ActorUserID: accountIDString(result.Account.ID),
		TargetType:  "account",
		TargetID:    accountIDString(result.Account.ID),
		Action:      "login",
		Outcome:     "success",
	})
	response.JSON(w, r, http.StatusOK, result)
}

// ForgotPassword answers identically for known and unknown emails.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "forgot_password", status, time.Since(start))
	}()

	var req forgotPasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		status = "failure"
		writeDecodeError(w, r, err)
		return
	}
	if err := h.resetSvc.RequestReset(r.Context(), req.Email); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName:  "auth.password_reset.requested",
			TargetType: "account",
			Action:     "request_reset",
			Outcome:    "failure",
			Reason:     service.AsError(err).Code,
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:  "auth.password_reset.requested",
		TargetType: "account",
		Action:     "request_reset",
		Outcome:    "accepted",
	})
	response.JSON(w, r, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "reset_password", status, time.Since(start))
	}()

	var req passwordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		status = "failure"
		writeDecodeError(w, r, err)
		return
	}
	if err := h.resetSvc.ConsumeReset(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName:  "auth.password_reset.completed",
			TargetType: "account",
			Action:     "consume_reset",
			Outcome:    "failure",
			Reason:     service.AsError(err).Code,
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:  "auth.password_reset.completed",
		TargetType: "account",
		Action:     "consume_reset",
		Outcome:    "success",
	})
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Password has been reset successfully"})
}

func (h *AuthHandler) VerifySuperAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if err := h.authSvc.VerifySuperAdminSecret(r.Context(), req.Password); err != nil {
		observability.Audit(r, observability.AuditInput{
			EventName:   "auth.super_admin.verify",
			ActorUserID: accountIDString(actor.ID),
			TargetType:  "super_admin",
			Action:      "verify",
			Outcome:     "failure",
			Reason:      service.AsError(err).Code,
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName:   "auth.super_admin.verify",
		ActorUserID: accountIDString(actor.ID),
		TargetType:  "super_admin",
		Action:      "verify",
		Outcome:     "success",
	})
	response.JSON(w, r, http.StatusOK, map[string]bool{"verified": true})
}
