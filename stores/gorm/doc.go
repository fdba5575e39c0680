// Package gorm provides a GORM-backed AccountStore for linkauth.
//
// Accounts live in an accounts table with a unique email index; linked
// provider identities live in an account_identities table whose composite
// primary key (provider, subject_id) is the global uniqueness invariant.
// Both writes happen in a single transaction, so a lost race against a
// concurrent resolution surfaces as linkauth.ErrDuplicateKey rather than a
// duplicate row.
//
// Usage:
//
//	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	if err != nil { ... }
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.NewAccountStore(db)
//
// TranslateError must be enabled so driver duplicate-key errors arrive as
// gorm.ErrDuplicatedKey.
package gorm
