package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure independently of the transport.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindInternal        ErrorKind = "internal"
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels keep working
// after a message has been specialised.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Err: e.Err}
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: "invalid input"}
	ErrWeakPassword      = &Error{Kind: KindValidation, Code: "WEAK_PASSWORD", Message: "password must be at least 12 characters and contain upper and lower case letters, a digit and a symbol"}
	ErrUnderage          = &Error{Kind: KindValidation, Code: "UNDERAGE", Message: "account holder is below the minimum registration age"}
	ErrDuplicateEmail    = &Error{Kind: KindValidation, Code: "DUPLICATE_EMAIL", Message: "email already registered"}
	ErrInvalidResetToken = &Error{Kind: KindValidation, Code: "INVALID_RESET_TOKEN", Message: "invalid or expired reset token"}

	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password"}
	ErrAccountGone        = &Error{Kind: KindUnauthenticated, Code: "UNAUTHORIZED", Message: "account no longer exists"}

	ErrAccountBanned         = &Error{Kind: KindForbidden, Code: "ACCOUNT_BANNED", Message: "Your account has been banned. Please contact the admin"}
	ErrTargetSuperAdmin      = &Error{Kind: KindForbidden, Code: "TARGET_SUPER_ADMIN", Message: "cannot act on the super admin"}
	ErrMasterSecretRequired  = &Error{Kind: KindForbidden, Code: "MASTER_SECRET_REQUIRED", Message: "master secret required"}
	ErrMasterSecretInvalid   = &Error{Kind: KindForbidden, Code: "MASTER_SECRET_INVALID", Message: "invalid master secret"}
	ErrAccessDenied          = &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "access denied"}
	ErrInvalidSuperAdminPass = &Error{Kind: KindForbidden, Code: "INVALID_SUPER_ADMIN_SECRET", Message: "invalid super admin password"}

	ErrAccountNotFound    = &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: "account not found"}
	ErrSuperAdminNotFound = &Error{Kind: KindNotFound, Code: "SUPER_ADMIN_NOT_FOUND", Message: "super admin not found"}

	ErrInternal = &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal server error"}
)

func invalidInput(msg string) *Error {
	return ErrValidation.withMessage(msg)
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: ErrInternal.Message, Err: err}
}

// AsError returns the typed error inside err, classifying anything unknown
// as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return internalError(err)
}
