//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/linkauth/linkauth"
)

// TokenList is a helper type for storing the access token history in GORM
type TokenList []linkauth.AccessToken

func (t TokenList) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *TokenList) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, t)
}

// ProfileJSON is a helper type for storing the profile in GORM
type ProfileJSON linkauth.Profile

func (p ProfileJSON) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ProfileJSON) Scan(value any) error {
	if value == nil {
		*p = ProfileJSON{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// AccountModel is the GORM model for accounts. The email carries its own
// unique index; provider identities live in IdentityModel rows so the
// database can enforce (provider, subject id) uniqueness.
type AccountModel struct {
	ID                   string    `gorm:"primaryKey;size:64"`
	Email                *string   `gorm:"size:255;uniqueIndex"`
	PasswordHash         string    `gorm:"size:128"`
	PasswordResetToken   string    `gorm:"size:128"`
	PasswordResetExpires time.Time
	Tokens               TokenList   `gorm:"type:jsonb"`
	Profile              ProfileJSON `gorm:"type:jsonb"`
	CreatedAt            time.Time   `gorm:"autoCreateTime"`
	UpdatedAt            time.Time   `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// IdentityModel is the GORM model for linked provider identities.
// The composite primary key is the global uniqueness invariant.
type IdentityModel struct {
	Provider  string    `gorm:"primaryKey;size:32"`
	SubjectID string    `gorm:"primaryKey;size:255"`
	AccountID string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (IdentityModel) TableName() string {
	return "account_identities"
}

func (m *AccountModel) toAccount(identities []IdentityModel) *linkauth.Account {
	out := &linkauth.Account{
		ID:                   m.ID,
		PasswordHash:         m.PasswordHash,
		PasswordResetToken:   m.PasswordResetToken,
		PasswordResetExpires: m.PasswordResetExpires,
		Tokens:               []linkauth.AccessToken(m.Tokens),
		Profile:              linkauth.Profile(m.Profile),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if m.Email != nil {
		out.Email = *m.Email
	}
	if len(identities) > 0 {
		out.Identities = make(map[string]string, len(identities))
		for _, identity := range identities {
			out.Identities[identity.Provider] = identity.SubjectID
		}
	}
	return out
}

func accountToModel(a *linkauth.Account) *AccountModel {
	model := &AccountModel{
		ID:                   a.ID,
		PasswordHash:         a.PasswordHash,
		PasswordResetToken:   a.PasswordResetToken,
		PasswordResetExpires: a.PasswordResetExpires,
		Tokens:               TokenList(a.Tokens),
		Profile:              ProfileJSON(a.Profile),
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
	if a.Email != "" {
		email := a.Email
		model.Email = &email
	}
	return model
}

func identitiesToModels(a *linkauth.Account) []IdentityModel {
	out := make([]IdentityModel, 0, len(a.Identities))
	for provider, subjectID := range a.Identities {
		out = append(out, IdentityModel{
			Provider:  provider,
			SubjectID: subjectID,
			AccountID: a.ID,
		})
	}
	return out
}
