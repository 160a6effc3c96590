package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// SyncError is a typed failure produced by the user sync core. Code is
// machine-readable and stable; Status is the HTTP class the boundary
// maps it to. The core itself never branches on Status.
type SyncError struct {
	Code        string `json:"code"`
	Description string `json:"message,omitempty"`
	Status      int    `json:"-"`
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Sync error codes.
const (
	EmailMissing              = "email_missing"
	UserInactive              = "user_inactive"
	ClerkUserNotAccessible    = "clerk_user_not_accessible"
	IdentityConflict          = "identity_conflict"
	EmailVerificationRequired = "email_verification_required"
	ServerError               = "server_error"

	// Boundary-only codes, never produced by the sync core itself.
	InvalidToken     = "invalid_token"
	InvalidSignature = "invalid_signature"
	InvalidPayload   = "invalid_payload"
)

func NewInvalidToken(description string) *SyncError {
	return &SyncError{
		Code:        InvalidToken,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewInvalidSignature(description string) *SyncError {
	return &SyncError{
		Code:        InvalidSignature,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewInvalidPayload(description string) *SyncError {
	return &SyncError{
		Code:        InvalidPayload,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

// Common error constructors

func NewEmailMissing(description string) *SyncError {
	return &SyncError{
		Code:        EmailMissing,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

// NewWebhookEmailMissing is the 400-class variant used when a webhook
// payload itself has no usable email: the provider will redeliver the
// same payload forever, so the caller must not signal a retryable
// failure.
func NewWebhookEmailMissing(description string) *SyncError {
	return &SyncError{
		Code:        EmailMissing,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

func NewUserInactive(description string) *SyncError {
	return &SyncError{
		Code:        UserInactive,
		Description: description,
		Status:      http.StatusForbidden,
	}
}

func NewClerkUserNotAccessible(description string) *SyncError {
	return &SyncError{
		Code:        ClerkUserNotAccessible,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewIdentityConflict(description string) *SyncError {
	return &SyncError{
		Code:        IdentityConflict,
		Description: description,
		Status:      http.StatusConflict,
	}
}

func NewEmailVerificationRequired(description string) *SyncError {
	return &SyncError{
		Code:        EmailVerificationRequired,
		Description: description,
		Status:      http.StatusForbidden,
	}
}

func NewServerError(description string) *SyncError {
	return &SyncError{
		Code:        ServerError,
		Description: description,
		Status:      http.StatusInternalServerError,
	}
}

// AsSyncError unwraps err into a *SyncError if it carries one.
func AsSyncError(err error) (*SyncError, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err: the typed status for sync
// errors, 500 for everything else.
func StatusOf(err error) int {
	if se, ok := AsSyncError(err); ok {
		return se.Status
	}
	return http.StatusInternalServerError
}

// ResponseFor returns the stable {code, message} body for err. Untyped
// errors collapse to a generic internal failure so storage detail never
// leaks to clients.
func ResponseFor(err error) *SyncError {
	if se, ok := AsSyncError(err); ok {
		return se
	}
	return NewServerError("internal error")
}
