//go:build !wasm
// +build !wasm

package gorm

import (
	"testing"

	"github.com/linkauth/linkauth"
)

func TestAccountModelRoundTrip(t *testing.T) {
	account := &linkauth.Account{
		ID:           "acc-1",
		Email:        "a@x.com",
		PasswordHash: "hash",
		Identities:   map[string]string{"facebook": "42", "google": "g1"},
		Tokens:       []linkauth.AccessToken{{Kind: "facebook", AccessToken: "tok"}},
		Profile:      linkauth.Profile{Name: "A B", Location: "Berlin"},
	}

	model := accountToModel(account)
	if model.Email == nil || *model.Email != "a@x.com" {
		t.Errorf("expected email pointer a@x.com, got %v", model.Email)
	}

	identities := identitiesToModels(account)
	if len(identities) != 2 {
		t.Fatalf("expected 2 identity rows, got %d", len(identities))
	}
	for _, identity := range identities {
		if identity.AccountID != "acc-1" {
			t.Errorf("identity row points at %q, want acc-1", identity.AccountID)
		}
		if account.Identities[identity.Provider] != identity.SubjectID {
			t.Errorf("identity row %s/%s does not match the account", identity.Provider, identity.SubjectID)
		}
	}

	back := model.toAccount(identities)
	if back.Email != account.Email || back.PasswordHash != account.PasswordHash {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if back.Identities["facebook"] != "42" || back.Identities["google"] != "g1" {
		t.Errorf("round trip lost identities: %+v", back.Identities)
	}
	if len(back.Tokens) != 1 || back.Tokens[0].AccessToken != "tok" {
		t.Errorf("round trip lost tokens: %+v", back.Tokens)
	}
	if back.Profile != account.Profile {
		t.Errorf("round trip lost profile: %+v", back.Profile)
	}
}

func TestAccountModelEmptyEmailIsNull(t *testing.T) {
	// OAuth-only accounts may lack an email; a NULL keeps them out of the
	// unique index.
	model := accountToModel(&linkauth.Account{ID: "acc-2"})
	if model.Email != nil {
		t.Errorf("expected nil email pointer, got %v", model.Email)
	}
	if back := model.toAccount(nil); back.Email != "" {
		t.Errorf("expected empty email back, got %q", back.Email)
	}
}

func TestTokenListScanValue(t *testing.T) {
	tokens := TokenList{{Kind: "facebook", AccessToken: "tok-1"}}
	value, err := tokens.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned TokenList
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(scanned) != 1 || scanned[0].AccessToken != "tok-1" {
		t.Errorf("round trip lost tokens: %+v", scanned)
	}

	var empty TokenList
	if err := empty.Scan(nil); err != nil || empty != nil {
		t.Errorf("expected nil list from NULL, got %+v err=%v", empty, err)
	}
}

func TestProfileJSONScanValue(t *testing.T) {
	profile := ProfileJSON{Name: "A B", Picture: "https://p.example.com/a.jpg"}
	value, err := profile.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned ProfileJSON
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned != profile {
		t.Errorf("round trip changed profile: %+v", scanned)
	}
}
