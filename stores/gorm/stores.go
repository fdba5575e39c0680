//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/linkauth/linkauth"
)

// AutoMigrate runs database migrations for all linkauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&IdentityModel{},
	)
}

// AccountStore implements linkauth.AccountStore using GORM. Writes run in a
// transaction so the account row and its identity rows land together; the
// database's unique indexes provide the atomic uniqueness checks.
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*linkauth.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", linkauth.ErrAccountNotFound, id)
		}
		return nil, err
	}
	return s.hydrate(ctx, &model)
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*linkauth.Account, error) {
	var model AccountModel
	err := s.db.WithContext(ctx).First(&model, "email = ?", linkauth.NormalizeEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, linkauth.ErrAccountNotFound
		}
		return nil, err
	}
	return s.hydrate(ctx, &model)
}

func (s *AccountStore) GetAccountByIdentity(ctx context.Context, provider, subjectID string) (*linkauth.Account, error) {
	var identity IdentityModel
	err := s.db.WithContext(ctx).First(&identity, "provider = ? AND subject_id = ?", provider, subjectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, linkauth.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, identity.AccountID)
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *linkauth.Account) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(accountToModel(account)).Error; err != nil {
			return err
		}
		for _, identity := range identitiesToModels(account) {
			if err := tx.Create(&identity).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translateErr(err)
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *linkauth.Account) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&AccountModel{}).Where("id = ?", account.ID).Updates(accountToModel(account))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", linkauth.ErrAccountNotFound, account.ID)
		}
		// Identities only grow; insert the ones the database does not have
		// yet and let the composite key reject stolen pairs.
		for _, identity := range identitiesToModels(account) {
			var existing IdentityModel
			err := tx.First(&existing, "provider = ? AND subject_id = ?", identity.Provider, identity.SubjectID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if err := tx.Create(&identity).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if existing.AccountID != account.ID {
				return gorm.ErrDuplicatedKey
			}
		}
		return nil
	})
	return translateErr(err)
}

func (s *AccountStore) hydrate(ctx context.Context, model *AccountModel) (*linkauth.Account, error) {
	var identities []IdentityModel
	if err := s.db.WithContext(ctx).Where("account_id = ?", model.ID).Find(&identities).Error; err != nil {
		return nil, err
	}
	return model.toAccount(identities), nil
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", linkauth.ErrDuplicateKey, err)
	}
	return err
}
