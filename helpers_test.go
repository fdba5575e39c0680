package linkauth_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/linkauth/linkauth"
	"github.com/linkauth/linkauth/stores/fs"
)

// setupStore creates a filesystem store in a per-test temp directory.
func setupStore(t *testing.T) *fs.AccountStore {
	t.Helper()
	return fs.NewAccountStore(t.TempDir())
}

// fastHasher keeps bcrypt cheap in tests.
func fastHasher() *linkauth.Hasher {
	return linkauth.NewHasher(bcrypt.MinCost)
}

var errStoreDown = errors.New("store is down")

// downStore fails every operation, for exercising unavailability paths.
type downStore struct{}

func (downStore) GetAccountByID(ctx context.Context, id string) (*linkauth.Account, error) {
	return nil, errStoreDown
}

func (downStore) GetAccountByEmail(ctx context.Context, email string) (*linkauth.Account, error) {
	return nil, errStoreDown
}

func (downStore) GetAccountByIdentity(ctx context.Context, provider, subjectID string) (*linkauth.Account, error) {
	return nil, errStoreDown
}

func (downStore) CreateAccount(ctx context.Context, account *linkauth.Account) error {
	return errStoreDown
}

func (downStore) SaveAccount(ctx context.Context, account *linkauth.Account) error {
	return errStoreDown
}
