package linkauth

import (
	"errors"
	"net/http"
)

// Authentication failure taxonomy. ErrUnknownIdentity and ErrInvalidCredential
// must be collapsed into one generic message before reaching a user so account
// existence is never revealed; ErrConflict is user-actionable and surfaced
// as-is.
var (
	// ErrUnknownIdentity - no account exists for the presented email.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrNoLocalCredential - the account exists but is OAuth-only and has no
	// password to check.
	ErrNoLocalCredential = errors.New("account has no local credential")

	// ErrInvalidCredential - the password did not match.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCorruptCredential - the stored hash is malformed. Fatal, never
	// retried.
	ErrCorruptCredential = errors.New("corrupt stored credential")

	// ErrConflict - the email or provider identity is already claimed by
	// another account. Never retried; resolved by an explicit user action.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable - transient store failure. No mutation happened, so
	// retrying the whole operation from scratch is safe.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// Error codes used by the HTTP layer
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeEmailExists      = "email_exists"
	ErrCodeConflict         = "conflict"
	ErrCodeStoreUnavailable = "store_unavailable"
)

// AuthError carries a machine-readable code and the offending field alongside
// the message, for HTTP error responses.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	return e.Message
}

// AuthErrorHandler lets applications take over error rendering. Returning
// true means the response was written.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool
