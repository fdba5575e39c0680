package linkauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Outcome tags the result of resolving an OAuth profile against store state.
// The set is closed; callers should switch over every value.
type Outcome int

const (
	// SignedIn - the identity belongs to an existing account; no mutation.
	SignedIn Outcome = iota

	// Linked - the identity was linked to the authenticated account.
	Linked

	// Created - a new account was created for the identity.
	Created

	// AlreadyLinked - the authenticated account already holds this identity.
	// An idempotent success, not an error; no mutation.
	AlreadyLinked

	// ConflictOutcome - the identity or its email is claimed by another
	// account; no mutation. Resolution.Reason says which.
	ConflictOutcome
)

func (o Outcome) String() string {
	switch o {
	case SignedIn:
		return "signed_in"
	case Linked:
		return "linked"
	case Created:
		return "created"
	case AlreadyLinked:
		return "already_linked"
	case ConflictOutcome:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Conflict reasons carried on Resolution.Reason. These are user-actionable
// and safe to surface verbatim.
const (
	ReasonIdentityClaimed = "identity already linked to another account"
	ReasonEmailClaimed    = "email already registered; link manually"
)

// ProviderProfile is the normalized profile a provider returns after a
// completed OAuth exchange. Only SubjectID is guaranteed; everything else is
// best-effort.
type ProviderProfile struct {
	SubjectID    string
	Email        string
	GivenName    string
	FamilyName   string
	Gender       string
	PictureURL   string
	LocationName string
}

// Resolution is the tagged result of a Resolve call. Account is set for every
// outcome except ConflictOutcome, where Reason is set instead.
type Resolution struct {
	Outcome Outcome
	Account *Account
	Reason  string
}

// Resolver decides what an incoming OAuth identity means: sign-in to an
// existing account, link to the authenticated account, a brand new account,
// or a conflict. The decision order is fixed and first match wins.
type Resolver struct {
	Store  AccountStore
	Config *Config
}

func NewResolver(store AccountStore, cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Resolver{Store: store, Config: cfg.EnsureDefaults()}
}

// Resolve runs the identity-resolution state machine. current is the
// currently authenticated account, or nil for anonymous callers.
//
// Lookups and the final persist behave as one logical transaction for this
// request: mutations are staged on a copy and written in a single store call,
// so a failure - including a context cancellation - leaves nothing partially
// applied. A uniqueness violation surfaced at persist time (a concurrent
// resolution won the race) is reported as a ConflictOutcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, current *Account, provider string, profile ProviderProfile, accessToken string) (*Resolution, error) {
	if profile.SubjectID == "" {
		return nil, fmt.Errorf("provider %s returned no subject id", provider)
	}
	if !r.Config.ProviderEnabled(provider) {
		return nil, fmt.Errorf("provider %q is not enabled", provider)
	}

	if current != nil {
		return r.resolveAuthenticated(ctx, current, provider, profile, accessToken)
	}
	return r.resolveAnonymous(ctx, provider, profile, accessToken)
}

// resolveAuthenticated handles callers that already hold a session: link the
// identity to their account unless somebody (possibly they themselves)
// already holds it.
func (r *Resolver) resolveAuthenticated(ctx context.Context, current *Account, provider string, profile ProviderProfile, accessToken string) (*Resolution, error) {
	existing, err := r.Store.GetAccountByIdentity(ctx, provider, profile.SubjectID)
	switch {
	case err == nil && existing.ID != current.ID:
		return &Resolution{Outcome: ConflictOutcome, Reason: ReasonIdentityClaimed}, nil
	case err == nil:
		return &Resolution{Outcome: AlreadyLinked, Account: current}, nil
	case !errors.Is(err, ErrAccountNotFound):
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	linked := current.Clone()
	linked.LinkIdentity(provider, profile.SubjectID, accessToken)
	r.enrichProfile(linked, provider, profile)

	if err := r.Store.SaveAccount(ctx, linked); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Lost the race to another resolution for the same identity.
			return &Resolution{Outcome: ConflictOutcome, Reason: ReasonIdentityClaimed}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Resolution{Outcome: Linked, Account: linked}, nil
}

// resolveAnonymous handles callers without a session: returning identities
// sign in, colliding emails conflict, and everything else becomes a new
// account.
func (r *Resolver) resolveAnonymous(ctx context.Context, provider string, profile ProviderProfile, accessToken string) (*Resolution, error) {
	existing, err := r.Store.GetAccountByIdentity(ctx, provider, profile.SubjectID)
	if err == nil {
		return &Resolution{Outcome: SignedIn, Account: existing}, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	email := NormalizeEmail(profile.Email)
	if email != "" {
		_, err := r.Store.GetAccountByEmail(ctx, email)
		if err == nil {
			// Deliberately not merged: the provider's email may be
			// attacker-controlled or unverified. Linking requires a
			// separately authenticated action.
			return &Resolution{Outcome: ConflictOutcome, Reason: ReasonEmailClaimed}, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	account := &Account{
		ID:    NewAccountID(),
		Email: email,
		Profile: Profile{
			Name:     composeName(profile.GivenName, profile.FamilyName),
			Gender:   profile.Gender,
			Location: profile.LocationName,
			Picture:  r.picture(provider, profile),
		},
	}
	account.LinkIdentity(provider, profile.SubjectID, accessToken)

	if err := r.Store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// A concurrent resolution created the account or claimed the
			// email between our lookups and this insert.
			return &Resolution{Outcome: ConflictOutcome, Reason: ReasonEmailClaimed}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Resolution{Outcome: Created, Account: account}, nil
}

// enrichProfile fills empty profile fields from the provider data. Fields
// already set are never overwritten.
func (r *Resolver) enrichProfile(account *Account, provider string, profile ProviderProfile) {
	if account.Profile.Name == "" {
		account.Profile.Name = composeName(profile.GivenName, profile.FamilyName)
	}
	if account.Profile.Gender == "" {
		account.Profile.Gender = profile.Gender
	}
	if account.Profile.Location == "" {
		account.Profile.Location = profile.LocationName
	}
	if account.Profile.Picture == "" {
		account.Profile.Picture = r.picture(provider, profile)
	}
}

func (r *Resolver) picture(provider string, profile ProviderProfile) string {
	if url := r.Config.pictureFor(provider, profile.SubjectID); url != "" {
		return url
	}
	return profile.PictureURL
}

func composeName(given, family string) string {
	return strings.TrimSpace(given + " " + family)
}
