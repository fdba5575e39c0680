package linkauth

import (
	"context"
	"errors"
)

// Store-level sentinel errors. Implementations must return these (possibly
// wrapped) so the resolver can tell a missing row from an infrastructure
// failure and a uniqueness violation from either.
var (
	// ErrAccountNotFound is returned by lookups that matched no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateKey is returned by CreateAccount/SaveAccount when the email
	// or a (provider, subject id) pair is already claimed by another account.
	ErrDuplicateKey = errors.New("duplicate key")
)

// AccountStore is the persistence port for accounts.
//
// Implementations must enforce email uniqueness (case-insensitive) and
// (provider, subject id) uniqueness atomically at write time: two concurrent
// inserts for the same key must not both succeed. Lookups and writes honor
// the caller's context for timeout and cancellation.
type AccountStore interface {
	// GetAccountByID retrieves an account by its opaque id.
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// GetAccountByEmail retrieves an account by its lowercased email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// GetAccountByIdentity retrieves the account holding the given linked
	// provider identity.
	GetAccountByIdentity(ctx context.Context, provider, subjectID string) (*Account, error)

	// CreateAccount inserts a new account. Fails with ErrDuplicateKey on an
	// email or provider-identity collision.
	CreateAccount(ctx context.Context, account *Account) error

	// SaveAccount updates an existing account under the same uniqueness
	// constraints as CreateAccount. Fails with ErrAccountNotFound when the id
	// no longer exists.
	SaveAccount(ctx context.Context, account *Account) error
}
