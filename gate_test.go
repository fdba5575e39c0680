package linkauth_test

import (
	"testing"

	"github.com/linkauth/linkauth"
)

func TestIsAuthorized(t *testing.T) {
	account := &linkauth.Account{ID: "a1"}
	account.LinkIdentity("spotify", "s1", "tok")

	if !linkauth.IsAuthorized(account, "spotify") {
		t.Error("expected authorization for a linked provider")
	}
	if linkauth.IsAuthorized(account, "google") {
		t.Error("expected no authorization for an unlinked provider")
	}
	if linkauth.IsAuthorized(&linkauth.Account{ID: "a2"}, "spotify") {
		t.Error("expected no authorization for an account without identities")
	}
	if linkauth.IsAuthorized(nil, "spotify") {
		t.Error("nil account must not be authorized")
	}
}

func TestHasProvider(t *testing.T) {
	var account *linkauth.Account
	if account.HasProvider("google") {
		t.Error("nil account should have no providers")
	}

	account = &linkauth.Account{ID: "a1", Identities: map[string]string{"google": "g1"}}
	if !account.HasProvider("google") {
		t.Error("expected google provider")
	}
	if account.HasProvider("facebook") {
		t.Error("unexpected facebook provider")
	}
}
