// Package grpc bridges authenticated accounts into gRPC services via
// metadata, with interceptors that can require a signed-in account or a
// specific linked provider per method.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for auth context. These can be customized via Config.
const (
	// DefaultMetadataKeyAccountID is the default gRPC metadata key for the
	// authenticated account ID.
	DefaultMetadataKeyAccountID = "x-account-id"

	// DefaultMetadataKeySwitchAccount is the default gRPC metadata key for
	// impersonating a different account (testing only).
	DefaultMetadataKeySwitchAccount = "x-switch-account"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAccountID is the gRPC metadata key for the authenticated
	// account ID. Defaults to "x-account-id".
	MetadataKeyAccountID string

	// MetadataKeySwitchAccount is the gRPC metadata key for switching to a
	// different account. Only honored when EnableSwitchAccount is set.
	// Defaults to "x-switch-account".
	MetadataKeySwitchAccount string

	// EnableSwitchAccount when true allows the switch-account header to
	// override the account ID. Only enable this in dev or test environments.
	EnableSwitchAccount bool
}

func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAccountID:     DefaultMetadataKeyAccountID,
		MetadataKeySwitchAccount: DefaultMetadataKeySwitchAccount,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAccountID == "" {
		c.MetadataKeyAccountID = DefaultMetadataKeyAccountID
	}
	if c.MetadataKeySwitchAccount == "" {
		c.MetadataKeySwitchAccount = DefaultMetadataKeySwitchAccount
	}
}

// AccountIDFromContext extracts the authenticated account ID from the gRPC
// context metadata. Returns empty string if no account is authenticated.
func AccountIDFromContext(ctx context.Context) string {
	return AccountIDFromContextWithConfig(ctx, nil)
}

// AccountIDFromContextWithConfig extracts the account ID using the specified config.
func AccountIDFromContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if config.EnableSwitchAccount {
		if values := md.Get(config.MetadataKeySwitchAccount); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}

	if values := md.Get(config.MetadataKeyAccountID); len(values) > 0 {
		return values[0]
	}

	return ""
}

// AccountIDToOutgoingContext adds the account ID to outgoing gRPC metadata.
func AccountIDToOutgoingContext(ctx context.Context, accountID string) context.Context {
	return AccountIDToOutgoingContextWithKey(ctx, accountID, DefaultMetadataKeyAccountID)
}

func AccountIDToOutgoingContextWithKey(ctx context.Context, accountID string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, accountID)
}

// SwitchAccountToOutgoingContext adds a switch-account header to outgoing
// metadata. This is only effective when EnableSwitchAccount is set on the
// server.
func SwitchAccountToOutgoingContext(ctx context.Context, switchToAccountID string) context.Context {
	return SwitchAccountToOutgoingContextWithKey(ctx, switchToAccountID, DefaultMetadataKeySwitchAccount)
}

func SwitchAccountToOutgoingContextWithKey(ctx context.Context, switchToAccountID string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, switchToAccountID)
}

// IsAuthenticated returns true if there is an authenticated account in the context.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}

func IsAuthenticatedWithConfig(ctx context.Context, config *Config) bool {
	return AccountIDFromContextWithConfig(ctx, config) != ""
}
