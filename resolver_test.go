package linkauth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/linkauth/linkauth"
)

func fbProfile() linkauth.ProviderProfile {
	return linkauth.ProviderProfile{
		SubjectID:    "42",
		Email:        "A@x.com",
		GivenName:    "A",
		FamilyName:   "B",
		Gender:       "female",
		LocationName: "Berlin",
	}
}

func TestResolveAnonymousCreatesAccount(t *testing.T) {
	store := setupStore(t)
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	res, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Outcome != linkauth.Created {
		t.Fatalf("expected Created, got %v", res.Outcome)
	}

	account := res.Account
	if account.Email != "a@x.com" {
		t.Errorf("expected normalized email a@x.com, got %q", account.Email)
	}
	if account.Identities["facebook"] != "42" {
		t.Errorf("expected facebook identity 42, got %q", account.Identities["facebook"])
	}
	if len(account.Tokens) != 1 || account.Tokens[0].AccessToken != "tok-1" {
		t.Errorf("expected one captured token, got %+v", account.Tokens)
	}
	if account.Profile.Name != "A B" {
		t.Errorf("expected composed name %q, got %q", "A B", account.Profile.Name)
	}
	if account.Profile.Gender != "female" || account.Profile.Location != "Berlin" {
		t.Errorf("unexpected profile: %+v", account.Profile)
	}
	if !strings.Contains(account.Profile.Picture, "graph.facebook.com/42/picture") {
		t.Errorf("expected provider-derived picture url, got %q", account.Profile.Picture)
	}

	// The account must be durably persisted and findable by identity.
	stored, err := store.GetAccountByIdentity(ctx, "facebook", "42")
	if err != nil {
		t.Fatalf("stored account not found by identity: %v", err)
	}
	if stored.ID != account.ID {
		t.Errorf("expected stored account %s, got %s", account.ID, stored.ID)
	}
}

func TestResolveAnonymousRepeatSignIn(t *testing.T) {
	store := setupStore(t)
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok-1")
	if err != nil || first.Outcome != linkauth.Created {
		t.Fatalf("setup Resolve failed: outcome=%v err=%v", first.Outcome, err)
	}

	second, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok-2")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if second.Outcome != linkauth.SignedIn {
		t.Fatalf("expected SignedIn, got %v", second.Outcome)
	}
	if second.Account.ID != first.Account.ID {
		t.Errorf("sign-in should return the original account")
	}

	// Repeat sign-in is a pure read: no token appended, nothing written.
	stored, err := store.GetAccountByID(ctx, first.Account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}
	if len(stored.Tokens) != 1 {
		t.Errorf("repeat sign-in must not append tokens, got %d", len(stored.Tokens))
	}
}

func TestResolveAnonymousEmailConflictNeverMerges(t *testing.T) {
	store := setupStore(t)
	local := linkauth.NewLocalAuth(store, fastHasher())
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	existing, err := local.Register(ctx, "a@x.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	res, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Outcome != linkauth.ConflictOutcome {
		t.Fatalf("expected ConflictOutcome, got %v", res.Outcome)
	}
	if res.Reason != linkauth.ReasonEmailClaimed {
		t.Errorf("expected reason %q, got %q", linkauth.ReasonEmailClaimed, res.Reason)
	}
	if res.Account != nil {
		t.Error("a conflict must not carry an account")
	}

	// The existing account must be untouched: no identity silently attached.
	stored, err := store.GetAccountByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}
	if len(stored.Identities) != 0 {
		t.Errorf("conflict must not link identities, got %+v", stored.Identities)
	}
	if _, err := store.GetAccountByIdentity(ctx, "facebook", "42"); !errors.Is(err, linkauth.ErrAccountNotFound) {
		t.Errorf("no account should hold the conflicting identity, got %v", err)
	}
}

func TestResolveAuthenticatedLinksAndEnriches(t *testing.T) {
	store := setupStore(t)
	local := linkauth.NewLocalAuth(store, fastHasher())
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	current, err := local.Register(ctx, "a@x.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	res, err := resolver.Resolve(ctx, current, "facebook", fbProfile(), "tok-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Outcome != linkauth.Linked {
		t.Fatalf("expected Linked, got %v", res.Outcome)
	}
	if res.Account.ID != current.ID {
		t.Errorf("linking must stay on the current account")
	}

	stored, err := store.GetAccountByID(ctx, current.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}
	if stored.Identities["facebook"] != "42" {
		t.Errorf("expected linked identity, got %+v", stored.Identities)
	}
	if len(stored.Tokens) != 1 || stored.Tokens[0].AccessToken != "tok-1" {
		t.Errorf("expected captured token, got %+v", stored.Tokens)
	}
	// Empty profile fields are filled from the provider.
	if stored.Profile.Name != "A B" || stored.Profile.Location != "Berlin" {
		t.Errorf("expected enriched profile, got %+v", stored.Profile)
	}
	// The caller's in-memory account is never mutated; mutations go through
	// the resolution result.
	if len(current.Identities) != 0 {
		t.Errorf("caller's account was mutated: %+v", current.Identities)
	}
}

func TestResolveAuthenticatedEnrichmentIsFirstWriteWins(t *testing.T) {
	store := setupStore(t)
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	current := &linkauth.Account{
		ID:      linkauth.NewAccountID(),
		Email:   "a@x.com",
		Profile: linkauth.Profile{Name: "Original Name"},
	}
	if err := store.CreateAccount(ctx, current); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	res, err := resolver.Resolve(ctx, current, "facebook", fbProfile(), "tok-1")
	if err != nil || res.Outcome != linkauth.Linked {
		t.Fatalf("Resolve failed: outcome=%v err=%v", res.Outcome, err)
	}

	stored, _ := store.GetAccountByID(ctx, current.ID)
	if stored.Profile.Name != "Original Name" {
		t.Errorf("existing profile fields must never be overwritten, got %q", stored.Profile.Name)
	}
	if stored.Profile.Gender != "female" {
		t.Errorf("empty profile fields should be filled, got %+v", stored.Profile)
	}
}

func TestResolveAuthenticatedAlreadyLinkedIsIdempotent(t *testing.T) {
	store := setupStore(t)
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok-1")
	if err != nil || first.Outcome != linkauth.Created {
		t.Fatalf("setup Resolve failed: outcome=%v err=%v", first.Outcome, err)
	}

	res, err := resolver.Resolve(ctx, first.Account, "facebook", fbProfile(), "tok-2")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Outcome != linkauth.AlreadyLinked {
		t.Fatalf("expected AlreadyLinked, got %v", res.Outcome)
	}
	if res.Account.ID != first.Account.ID {
		t.Errorf("expected the current account back")
	}

	stored, _ := store.GetAccountByID(ctx, first.Account.ID)
	if len(stored.Tokens) != 1 {
		t.Errorf("already-linked resolution must not append tokens, got %d", len(stored.Tokens))
	}
}

func TestResolveAuthenticatedIdentityClaimedByOther(t *testing.T) {
	store := setupStore(t)
	local := linkauth.NewLocalAuth(store, fastHasher())
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	// Somebody else already owns facebook/42.
	owner, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok-1")
	if err != nil || owner.Outcome != linkauth.Created {
		t.Fatalf("setup Resolve failed: outcome=%v err=%v", owner.Outcome, err)
	}

	current, err := local.Register(ctx, "b@x.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	res, err := resolver.Resolve(ctx, current, "facebook", fbProfile(), "tok-2")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Outcome != linkauth.ConflictOutcome {
		t.Fatalf("expected ConflictOutcome, got %v", res.Outcome)
	}
	if res.Reason != linkauth.ReasonIdentityClaimed {
		t.Errorf("expected reason %q, got %q", linkauth.ReasonIdentityClaimed, res.Reason)
	}

	// Neither account may change.
	storedCurrent, _ := store.GetAccountByID(ctx, current.ID)
	if len(storedCurrent.Identities) != 0 {
		t.Errorf("conflict must not mutate the current account: %+v", storedCurrent.Identities)
	}
	storedOwner, _ := store.GetAccountByID(ctx, owner.Account.ID)
	if len(storedOwner.Tokens) != 1 {
		t.Errorf("conflict must not mutate the owning account: %+v", storedOwner.Tokens)
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	resolver := linkauth.NewResolver(setupStore(t), &linkauth.Config{Providers: []string{"google"}})
	ctx := context.Background()

	// Missing subject id.
	profile := fbProfile()
	profile.SubjectID = ""
	if _, err := resolver.Resolve(ctx, nil, "google", profile, "tok"); err == nil {
		t.Error("expected error for empty subject id")
	}

	// Provider not in the enabled set.
	if _, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok"); err == nil {
		t.Error("expected error for disabled provider")
	}
}

func TestResolveStoreUnavailable(t *testing.T) {
	resolver := linkauth.NewResolver(downStore{}, nil)
	_, err := resolver.Resolve(context.Background(), nil, "facebook", fbProfile(), "tok")
	if !errors.Is(err, linkauth.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResolveConcurrentCreateExactlyOnce(t *testing.T) {
	store := setupStore(t)
	resolver := linkauth.NewResolver(store, nil)
	ctx := context.Background()

	const workers = 8
	outcomes := make([]linkauth.Outcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := resolver.Resolve(ctx, nil, "facebook", fbProfile(), "tok")
			if err != nil {
				errs[i] = err
				return
			}
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		switch outcomes[i] {
		case linkauth.Created:
			created++
		case linkauth.SignedIn, linkauth.ConflictOutcome:
			// Losers of the race either see the new account or report the
			// late-detected collision; both leave the store consistent.
		default:
			t.Errorf("worker %d: unexpected outcome %v", i, outcomes[i])
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one Created, got %d", created)
	}

	// Exactly one account holds the identity.
	if _, err := store.GetAccountByIdentity(ctx, "facebook", "42"); err != nil {
		t.Errorf("expected the single created account to be findable: %v", err)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[linkauth.Outcome]string{
		linkauth.SignedIn:        "signed_in",
		linkauth.Linked:          "linked",
		linkauth.Created:         "created",
		linkauth.AlreadyLinked:   "already_linked",
		linkauth.ConflictOutcome: "conflict",
	}
	for outcome, expected := range tests {
		if got := outcome.String(); got != expected {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(outcome), got, expected)
		}
	}
}
