// Package linkauth reconciles local (email + password) credentials and
// third-party OAuth identities into a single account record.
//
// The package is built around one decision procedure: given an incoming
// credential assertion, does it belong to an existing account, a new account,
// or does it collide with an account someone else already owns?
//
// # Architecture
//
// Account: the durable identity record. An account is addressable by id,
// optionally by email, and optionally by one or more linked provider
// identities (a provider name paired with the provider-assigned subject id).
//
// LocalAuth: verifies email/password pairs against stored accounts. It never
// mutates an account on the sign-in path.
//
// Resolver: the identity-resolution state machine for OAuth sign-ins. Given a
// provider profile and the (optional) currently authenticated account it
// produces exactly one of five outcomes: SignedIn, Linked, Created,
// AlreadyLinked or ConflictOutcome. Linking and creation are the only
// mutation points and each is a single all-or-nothing persist.
//
// AccountStore: the persistence port. Implementations live under stores/ and
// must enforce the two global uniqueness invariants (email, and
// provider+subject id) atomically so that concurrent resolutions cannot
// create duplicate accounts.
//
// # Basic Usage
//
// Wire a store, a hasher and the resolver:
//
//	store := fs.NewAccountStore("/path/to/storage")
//	cfg := (&linkauth.Config{}).EnsureDefaults()
//	local := linkauth.NewLocalAuth(store, linkauth.NewHasher(cfg.HashCost))
//	resolver := linkauth.NewResolver(store, cfg)
//
// Local sign-in:
//
//	account, err := local.Authenticate(ctx, email, password)
//
// OAuth callback (current is nil for anonymous callers):
//
//	res, err := resolver.Resolve(ctx, current, "facebook", profile, token.AccessToken)
//	switch res.Outcome {
//	case linkauth.SignedIn, linkauth.Created, linkauth.Linked, linkauth.AlreadyLinked:
//	    // start a session for res.Account
//	case linkauth.ConflictOutcome:
//	    // surface res.Reason to the user; no mutation happened
//	}
//
// # Linking Policy
//
// An anonymous OAuth sign-in whose email matches an existing account is a
// conflict, never an automatic merge. Silent merging is an account-takeover
// vector when the provider's email is unverified; the user must sign in to
// the existing account and link the provider from there (which is the
// authenticated case of Resolve).
//
// # Security
//
// Passwords are hashed with bcrypt using a configurable cost. The package
// never logs passwords or provider access tokens. Caller-facing messaging
// must collapse ErrUnknownIdentity and ErrInvalidCredential into one generic
// failure so account existence is not revealed, while conflicts carry an
// actionable reason.
//
// # Testing
//
// The HTTP surface can be exercised with httptest against the filesystem
// store in stores/fs, which keeps every uniqueness check in-process.
package linkauth
