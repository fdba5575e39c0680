package linkauth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// AccessToken records a provider access token captured during a linking or
// creation event. The token list on an account is append-only history and is
// never deduplicated.
type AccessToken struct {
	Kind        string `json:"kind"`
	AccessToken string `json:"access_token"`
}

// Profile holds opportunistically collected profile data. Outside of account
// creation each field is first-write-wins: once set it is never overwritten.
type Profile struct {
	Name     string `json:"name,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// Account is the durable identity record.
//
// A persisted account always carries at least one authentication method: a
// password hash, a linked provider identity, or both. Identities maps a
// provider name to the provider-assigned subject id; a given (provider,
// subject id) pair belongs to at most one account globally, as does an email.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`

	// PasswordHash is only ever set via Account.SetPassword and never holds
	// plaintext.
	PasswordHash string `json:"-"`

	PasswordResetToken   string    `json:"-"`
	PasswordResetExpires time.Time `json:"password_reset_expires,omitempty"`

	Identities map[string]string `json:"identities,omitempty"`
	Tokens     []AccessToken     `json:"tokens,omitempty"`
	Profile    Profile           `json:"profile"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail canonicalizes an email for lookup and storage. Email
// uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccountID generates a cryptographically secure account ID.
func NewAccountID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HasLocalCredential reports whether the account can be authenticated with a
// password.
func (a *Account) HasLocalCredential() bool {
	return a.PasswordHash != ""
}

// SetPassword hashes plaintext into PasswordHash. When the incoming plaintext
// already matches the stored hash the account is left untouched, so repeated
// saves of an unchanged password never re-hash (and never double-hash an
// already hashed value).
func (a *Account) SetPassword(h *Hasher, plaintext string) error {
	if a.PasswordHash != "" {
		matched, err := h.Verify(plaintext, a.PasswordHash)
		if err == nil && matched {
			return nil
		}
	}
	hash, err := h.Hash(plaintext)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

// LinkIdentity records a provider identity on the account and appends the
// access token to the token history.
func (a *Account) LinkIdentity(provider, subjectID, accessToken string) {
	if a.Identities == nil {
		a.Identities = make(map[string]string)
	}
	a.Identities[provider] = subjectID
	a.Tokens = append(a.Tokens, AccessToken{Kind: provider, AccessToken: accessToken})
}

// Clone returns a deep copy of the account. The resolver stages mutations on
// a clone so a failed persist leaves the caller's account untouched.
func (a *Account) Clone() *Account {
	out := *a
	if a.Identities != nil {
		out.Identities = make(map[string]string, len(a.Identities))
		for k, v := range a.Identities {
			out.Identities[k] = v
		}
	}
	if a.Tokens != nil {
		out.Tokens = make([]AccessToken, len(a.Tokens))
		copy(out.Tokens, a.Tokens)
	}
	return &out
}

// Gravatar returns the gravatar URL for the account's email, falling back to
// a retro placeholder when no email is set.
func (a *Account) Gravatar(size int) string {
	if size <= 0 {
		size = 200
	}
	if a.Email == "" {
		return fmt.Sprintf("https://gravatar.com/avatar/?s=%d&d=retro", size)
	}
	sum := md5.Sum([]byte(NormalizeEmail(a.Email)))
	return fmt.Sprintf("https://gravatar.com/avatar/%s?s=%d&d=retro", hex.EncodeToString(sum[:]), size)
}
