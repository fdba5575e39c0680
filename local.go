package linkauth

import (
	"context"
	"errors"
	"fmt"
)

// LocalAuth authenticates email/password pairs against the account store.
type LocalAuth struct {
	Store  AccountStore
	Hasher *Hasher
}

func NewLocalAuth(store AccountStore, hasher *Hasher) *LocalAuth {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	return &LocalAuth{Store: store, Hasher: hasher}
}

// Authenticate verifies an email/password pair and returns the matching
// account. The email is lowercased before lookup. Failures are
// ErrUnknownIdentity, ErrNoLocalCredential, ErrInvalidCredential,
// ErrCorruptCredential or a wrapped ErrStoreUnavailable; no path mutates the
// account.
func (a *LocalAuth) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = NormalizeEmail(email)

	account, err := a.Store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, email)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !account.HasLocalCredential() {
		return nil, ErrNoLocalCredential
	}

	matched, err := a.Hasher.Verify(password, account.PasswordHash)
	if err != nil {
		// Malformed stored hash - surface as-is, retrying cannot help.
		return nil, err
	}
	if !matched {
		return nil, ErrInvalidCredential
	}
	return account, nil
}

// Register creates a new password-only account for the email. A claimed email
// surfaces as ErrConflict.
func (a *LocalAuth) Register(ctx context.Context, email, password string) (*Account, error) {
	account := &Account{
		ID:    NewAccountID(),
		Email: NormalizeEmail(email),
	}
	if err := account.SetPassword(a.Hasher, password); err != nil {
		return nil, err
	}

	if err := a.Store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return account, nil
}
