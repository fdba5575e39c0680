//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/linkauth/linkauth"
)

// AccountEntity is the Datastore entity for accounts. Linked identities are
// not stored inline; they live in IdentityEntity rows so their keys can carry
// the uniqueness invariant.
type AccountEntity struct {
	Key                  *datastore.Key `datastore:"__key__"`
	Email                string         `datastore:"email"`
	PasswordHash         string         `datastore:"password_hash,noindex"`
	PasswordResetToken   string         `datastore:"password_reset_token,noindex"`
	PasswordResetExpires time.Time      `datastore:"password_reset_expires,noindex"`
	Tokens               []byte         `datastore:"tokens,noindex"`  // JSON encoded
	Profile              []byte         `datastore:"profile,noindex"` // JSON encoded
	CreatedAt            time.Time      `datastore:"created_at"`
	UpdatedAt            time.Time      `datastore:"updated_at"`
}

// IdentityEntity is the Datastore entity for linked provider identities.
// Key name format: provider + ":" + subjectID, which makes the global
// (provider, subject id) invariant a key collision.
type IdentityEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Provider  string         `datastore:"provider"`
	SubjectID string         `datastore:"subject_id"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// EmailEntity reserves an email for an account. Key name is the lowercased
// email.
type EmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
}

func (e *AccountEntity) toAccount(identities map[string]string) (*linkauth.Account, error) {
	out := &linkauth.Account{
		ID:                   e.Key.Name,
		Email:                e.Email,
		PasswordHash:         e.PasswordHash,
		PasswordResetToken:   e.PasswordResetToken,
		PasswordResetExpires: e.PasswordResetExpires,
		Identities:           identities,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
	if len(e.Tokens) > 0 {
		if err := json.Unmarshal(e.Tokens, &out.Tokens); err != nil {
			return nil, err
		}
	}
	if len(e.Profile) > 0 {
		if err := json.Unmarshal(e.Profile, &out.Profile); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func accountToEntity(a *linkauth.Account) (*AccountEntity, error) {
	tokens, err := json.Marshal(a.Tokens)
	if err != nil {
		return nil, err
	}
	profile, err := json.Marshal(a.Profile)
	if err != nil {
		return nil, err
	}
	return &AccountEntity{
		Email:                a.Email,
		PasswordHash:         a.PasswordHash,
		PasswordResetToken:   a.PasswordResetToken,
		PasswordResetExpires: a.PasswordResetExpires,
		Tokens:               tokens,
		Profile:              profile,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}, nil
}
