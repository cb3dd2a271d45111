package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
)

const (
	resetTokenBytes   = 32
	resetEmailSubject = "Password Reset Request"
)

// PasswordResetService issues single-use reset tokens. Only the SHA-256 of a
// token is stored, so a leaked database row cannot be redeemed.
type PasswordResetService struct {
	accounts repository.AccountRepository
	notifier Notifier
	ttl      time.Duration
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

func NewPasswordResetService(cfg *config.Config, accounts repository.AccountRepository, notifier Notifier, logger *slog.Logger) *PasswordResetService {
	return &PasswordResetService{
		accounts: accounts,
		notifier: notifier,
		ttl:      cfg.PasswordResetTokenTTL,
		baseURL:  strings.TrimRight(cfg.PasswordResetBaseURL, "/"),
		logger:   logger,
		now:      time.Now,
	}
}

// RequestReset behaves identically whether or not the email is registered.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return invalidInput("email is required")
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthFlowEvent(ctx, "forgot_password", "unknown_email")
			return nil
		}
		return internalError(err)
	}

	token, err := security.NewRandomToken(resetTokenBytes)
	if err != nil {
		return internalError(err)
	}
	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.accounts.SetResetToken(ctx, account.ID, security.HashToken(token), expiresAt); err != nil {
		return internalError(err)
	}

	link := s.baseURL + "/" + token
	err = s.notifier.Send(ctx, Notification{
		To:      account.Email,
		Subject: resetEmailSubject,
		Body: fmt.Sprintf("You requested a password reset. Open the link below to choose a new password:\n\n%s\n\n"+
			"The link expires in %d minutes. If you didn't request this, you can safely ignore this email.",
			link, int(s.ttl.Minutes())),
	})
	if err != nil {
		observability.RecordNotificationDelivery(ctx, "password_reset", "failed")
		s.logger.ErrorContext(ctx, "password reset notification failed", "account_id", account.ID, "error", err)
		if clearErr := s.accounts.ClearResetToken(ctx, account.ID); clearErr != nil {
			s.logger.WarnContext(ctx, "clear undelivered reset token failed", "account_id", account.ID, "error", clearErr)
		}
		// Same answer as an unknown email; the failure is only visible in logs and metrics.
		observability.RecordAuthFlowEvent(ctx, "forgot_password", "delivery_failed")
		return nil
	}
	observability.RecordNotificationDelivery(ctx, "password_reset", "sent")
	observability.RecordAuthFlowEvent(ctx, "forgot_password", "issued")
	return nil
}

// ConsumeReset redeems token exactly once, replacing the password and clearing
// the token in the same write.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if newPassword == "" {
		return invalidInput("password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return internalError(err)
	}
	if _, err := s.accounts.ConsumeResetToken(ctx, security.HashToken(token), hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			observability.RecordAuthFlowEvent(ctx, "reset_password", "invalid_token")
			return ErrInvalidResetToken
		}
		return internalError(err)
	}
	observability.RecordAuthFlowEvent(ctx, "reset_password", "success")
	return nil
}
