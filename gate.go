package linkauth

// HasProvider reports whether the account holds a linked identity for the
// provider. The resolver keeps Identities and Tokens consistent, so this is
// equivalent to scanning Tokens for a matching kind.
func (a *Account) HasProvider(provider string) bool {
	if a == nil || a.Identities == nil {
		return false
	}
	_, ok := a.Identities[provider]
	return ok
}

// IsAuthorized is the per-request capability check: may the account perform
// actions against the requested provider? Pure predicate over the already
// loaded account, no I/O.
func IsAuthorized(account *Account, provider string) bool {
	return account.HasProvider(provider)
}
