//go:build !wasm
// +build !wasm

// Package gae provides a Cloud Datastore backed AccountStore. Email and
// provider-identity uniqueness are modeled as dedicated entity kinds whose key
// names embed the claimed value, so claiming one inside a transaction is an
// atomic collision check.
package gae

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/linkauth/linkauth"
)

const (
	KindAccount  = "Account"
	KindIdentity = "AccountIdentity"
	KindEmail    = "AccountEmail"
)

// AccountStore is a Cloud Datastore backed account store. All entities live
// in a single namespace so multiple deployments can share a project.
type AccountStore struct {
	client    *datastore.Client
	Namespace string
}

func NewAccountStore(ctx context.Context, projectID, namespace string) (*AccountStore, error) {
	client, err := datastore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("cannot create datastore client: %w", err)
	}
	return &AccountStore{client: client, Namespace: namespace}, nil
}

func (s *AccountStore) key(kind, name string) *datastore.Key {
	k := datastore.NameKey(kind, name, nil)
	k.Namespace = s.Namespace
	return k
}

func identityKeyName(provider, subjectID string) string {
	return provider + ":" + subjectID
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*linkauth.Account, error) {
	var ent AccountEntity
	if err := s.client.Get(ctx, s.key(KindAccount, id), &ent); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, linkauth.ErrAccountNotFound
		}
		return nil, err
	}
	return s.hydrate(ctx, &ent)
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*linkauth.Account, error) {
	var ref EmailEntity
	if err := s.client.Get(ctx, s.key(KindEmail, linkauth.NormalizeEmail(email)), &ref); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, linkauth.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, ref.AccountID)
}

func (s *AccountStore) GetAccountByIdentity(ctx context.Context, provider, subjectID string) (*linkauth.Account, error) {
	var ident IdentityEntity
	if err := s.client.Get(ctx, s.key(KindIdentity, identityKeyName(provider, subjectID)), &ident); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, linkauth.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, ident.AccountID)
}

// hydrate fills in the linked identities for an account entity by querying
// the identity rows that point at it.
func (s *AccountStore) hydrate(ctx context.Context, ent *AccountEntity) (*linkauth.Account, error) {
	identities := map[string]string{}
	q := datastore.NewQuery(KindIdentity).Namespace(s.Namespace).FilterField("account_id", "=", ent.Key.Name)
	it := s.client.Run(ctx, q)
	for {
		var ident IdentityEntity
		if _, err := it.Next(&ident); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, err
		}
		identities[ident.Provider] = ident.SubjectID
	}
	return ent.toAccount(identities)
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *linkauth.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	ent, err := accountToEntity(account)
	if err != nil {
		return err
	}
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		accountKey := s.key(KindAccount, account.ID)
		var existing AccountEntity
		if err := tx.Get(accountKey, &existing); err == nil {
			return linkauth.ErrDuplicateKey
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if account.Email != "" {
			if err := s.claimEmail(tx, account.Email, account.ID); err != nil {
				return err
			}
		}
		for provider, subjectID := range account.Identities {
			if err := s.claimIdentity(tx, provider, subjectID, account.ID, now); err != nil {
				return err
			}
		}
		_, err := tx.Put(accountKey, ent)
		return err
	})
	if err != nil {
		log.Println("error creating account: ", err)
	}
	return err
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *linkauth.Account) error {
	now := time.Now().UTC()
	account.UpdatedAt = now
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		accountKey := s.key(KindAccount, account.ID)
		var existing AccountEntity
		if err := tx.Get(accountKey, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return linkauth.ErrAccountNotFound
			}
			return err
		}
		account.CreatedAt = existing.CreatedAt
		ent, err := accountToEntity(account)
		if err != nil {
			return err
		}
		if account.Email != "" && !strings.EqualFold(account.Email, existing.Email) {
			if err := s.claimEmail(tx, account.Email, account.ID); err != nil {
				return err
			}
			if existing.Email != "" {
				if err := tx.Delete(s.key(KindEmail, linkauth.NormalizeEmail(existing.Email))); err != nil {
					return err
				}
			}
		}
		for provider, subjectID := range account.Identities {
			if err := s.claimIdentity(tx, provider, subjectID, account.ID, now); err != nil {
				return err
			}
		}
		_, err = tx.Put(accountKey, ent)
		return err
	})
	if err != nil && !errors.Is(err, linkauth.ErrDuplicateKey) && !errors.Is(err, linkauth.ErrAccountNotFound) {
		log.Println("error saving account: ", err)
	}
	return err
}

// claimEmail reserves an email for accountID, failing with ErrDuplicateKey
// if another account holds it.
func (s *AccountStore) claimEmail(tx *datastore.Transaction, email, accountID string) error {
	key := s.key(KindEmail, linkauth.NormalizeEmail(email))
	var ref EmailEntity
	err := tx.Get(key, &ref)
	if err == nil {
		if ref.AccountID != accountID {
			return linkauth.ErrDuplicateKey
		}
		return nil
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	_, err = tx.Put(key, &EmailEntity{AccountID: accountID})
	return err
}

func (s *AccountStore) claimIdentity(tx *datastore.Transaction, provider, subjectID, accountID string, now time.Time) error {
	key := s.key(KindIdentity, identityKeyName(provider, subjectID))
	var ident IdentityEntity
	err := tx.Get(key, &ident)
	if err == nil {
		if ident.AccountID != accountID {
			return linkauth.ErrDuplicateKey
		}
		return nil
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	_, err = tx.Put(key, &IdentityEntity{
		Provider:  provider,
		SubjectID: subjectID,
		AccountID: accountID,
		CreatedAt: now,
	})
	return err
}
