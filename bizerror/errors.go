package bizerror

import (
	"net/http"
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

// codedError is a sentinel error which knows how it is rendered.
type codedError struct {
	status  int
	code    string
	message string
}

func newCodedError(status int, code, message string) *codedError {
	return &codedError{status: status, code: code, message: message}
}

func (e *codedError) Error() string {
	return e.message
}

func (e *codedError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: e.status, Code: e.code, Message: e.message}
}

var (
	ErrUnauthenticated = newCodedError(http.StatusUnauthorized, "common.unauthenticated", "unauthenticated")
	ErrForbidden       = newCodedError(http.StatusForbidden, "security.forbidden", "access forbidden")
	ErrTooManyRequests = newCodedError(http.StatusTooManyRequests, "common.too_many_requests", "rate limit exceeded")

	ErrInvalidCredentials    = newCodedError(http.StatusUnauthorized, "security.invalid_credentials", "Incorrect username or password")
	ErrInvalidOrExpiredToken = newCodedError(http.StatusBadRequest, "security.invalid_token", "Invalid or expired reset token")
	ErrIncorrectOldPassword  = newCodedError(http.StatusBadRequest, "security.incorrect_old_password", "Incorrect old password")

	ErrEmailTaken    = newCodedError(http.StatusBadRequest, "account.email_taken", "Email already registered")
	ErrUsernameTaken = newCodedError(http.StatusBadRequest, "account.username_taken", "Username already taken")
	ErrUserNotFound  = newCodedError(http.StatusNotFound, "account.user_not_found", "User not found")

	ErrRoleNotFound     = newCodedError(http.StatusBadRequest, "authority.role_not_found", "Role not found")
	ErrUnknownTemplate  = newCodedError(http.StatusBadRequest, "mail.unknown_template", "unknown email template")
	ErrMailDeliveryFail = newCodedError(http.StatusBadGateway, "mail.delivery_failed", "Failed to send email")
)

type ErrWeakPassword struct {
	Reason string
}

func (e *ErrWeakPassword) Error() string {
	return "weak password: " + e.Reason
}

func (e *ErrWeakPassword) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "security.weak_password", Message: e.Reason}
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}

func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}

func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := "common.bad_param"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message, Data: nil}
}
