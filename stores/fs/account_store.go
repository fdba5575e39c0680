// Package fs provides a filesystem-backed AccountStore that keeps every
// account as a JSON file. Lookups scan the storage directory and all writes
// run under one process-wide lock, which is what gives the uniqueness checks
// their atomicity. Suitable for development and tests.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/linkauth/linkauth"
)

// AccountStore stores accounts as JSON files under StoragePath/accounts.
type AccountStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewAccountStore(storagePath string) *AccountStore {
	return &AccountStore{StoragePath: storagePath}
}

func (s *AccountStore) accountPath(id string) string {
	safeId := filepath.Base(id) // prevents path traversal
	return filepath.Join(s.StoragePath, "accounts", safeId+".json")
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*linkauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAccount(id)
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*linkauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAccount(func(a *linkauth.Account) bool {
		return a.Email != "" && a.Email == linkauth.NormalizeEmail(email)
	})
}

func (s *AccountStore) GetAccountByIdentity(ctx context.Context, provider, subjectID string) (*linkauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAccount(func(a *linkauth.Account) bool {
		return a.Identities[provider] == subjectID
	})
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *linkauth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readAccount(account.ID); err == nil {
		return fmt.Errorf("%w: id %s", linkauth.ErrDuplicateKey, account.ID)
	}
	if err := s.checkUnique(account); err != nil {
		return err
	}

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	return s.writeAccount(account)
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *linkauth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAccount(account.ID)
	if err != nil {
		return err
	}
	if err := s.checkUnique(account); err != nil {
		return err
	}

	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now()
	return s.writeAccount(account)
}

// checkUnique enforces the global email and (provider, subject id)
// invariants against every other stored account. Caller holds the lock.
func (s *AccountStore) checkUnique(account *linkauth.Account) error {
	return s.walkAccounts(func(other *linkauth.Account) error {
		if other.ID == account.ID {
			return nil
		}
		if account.Email != "" && other.Email == account.Email {
			return fmt.Errorf("%w: email %s", linkauth.ErrDuplicateKey, account.Email)
		}
		for provider, subjectID := range account.Identities {
			if other.Identities[provider] == subjectID {
				return fmt.Errorf("%w: identity %s/%s", linkauth.ErrDuplicateKey, provider, subjectID)
			}
		}
		return nil
	})
}

func (s *AccountStore) readAccount(id string) (*linkauth.Account, error) {
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", linkauth.ErrAccountNotFound, id)
		}
		return nil, err
	}
	var account storedAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return account.toAccount(), nil
}

func (s *AccountStore) writeAccount(account *linkauth.Account) error {
	path := s.accountPath(account.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fromAccount(account), "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *AccountStore) findAccount(match func(*linkauth.Account) bool) (*linkauth.Account, error) {
	var found *linkauth.Account
	err := s.walkAccounts(func(a *linkauth.Account) error {
		if found == nil && match(a) {
			found = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, linkauth.ErrAccountNotFound
	}
	return found, nil
}

func (s *AccountStore) walkAccounts(visit func(*linkauth.Account) error) error {
	dir := filepath.Join(s.StoragePath, "accounts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		var account storedAccount
		if err := json.Unmarshal(data, &account); err != nil {
			return err
		}
		if err := visit(account.toAccount()); err != nil {
			return err
		}
	}
	return nil
}

// storedAccount is the on-disk shape. The password hash and reset token are
// excluded from the Account's own JSON tags, so they are carried explicitly
// here.
type storedAccount struct {
	linkauth.Account
	PasswordHash       string `json:"password_hash,omitempty"`
	PasswordResetToken string `json:"password_reset_token,omitempty"`
}

func fromAccount(a *linkauth.Account) *storedAccount {
	return &storedAccount{
		Account:            *a,
		PasswordHash:       a.PasswordHash,
		PasswordResetToken: a.PasswordResetToken,
	}
}

func (s *storedAccount) toAccount() *linkauth.Account {
	out := s.Account
	out.PasswordHash = s.PasswordHash
	out.PasswordResetToken = s.PasswordResetToken
	return &out
}
