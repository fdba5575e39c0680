package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/linkauth/linkauth"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but AccountIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// RequiredProviders maps full method names to a provider that must be
	// linked on the calling account. Enforcing this needs a Store to load
	// the account.
	RequiredProviders map[string]string

	// Store loads accounts for provider checks. Required when
	// RequiredProviders is non-empty.
	Store linkauth.AccountStore
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:            DefaultConfig(),
		RequireAuth:       true,
		PublicMethods:     make(map[string]bool),
		RequiredProviders: make(map[string]string),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig() *InterceptorConfig {
	config := DefaultInterceptorConfig()
	config.RequireAuth = false
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that processes auth
// metadata, including the switch-account header when EnableSwitchAccount is
// set in the config.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = ensureInterceptorConfig(config)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := config.authorize(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that processes auth metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = ensureInterceptorConfig(config)

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := config.authorize(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func ensureInterceptorConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	return config
}

// authorize enforces the auth and provider requirements for a method.
func (c *InterceptorConfig) authorize(ctx context.Context, fullMethod string) error {
	if c.PublicMethods[fullMethod] {
		return nil
	}

	accountID := extractAccountID(ctx, c)
	if c.RequireAuth && accountID == "" {
		return status.Error(codes.Unauthenticated, "authentication required")
	}

	provider, needed := c.RequiredProviders[fullMethod]
	if !needed {
		return nil
	}
	if accountID == "" {
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	if c.Store == nil {
		return status.Error(codes.Internal, "no account store configured")
	}
	account, err := c.Store.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, linkauth.ErrAccountNotFound) {
			return status.Error(codes.Unauthenticated, "account not found")
		}
		return status.Error(codes.Unavailable, "account lookup failed")
	}
	if !linkauth.IsAuthorized(account, provider) {
		return status.Errorf(codes.PermissionDenied, "account has no linked %s identity", provider)
	}
	return nil
}

// extractAccountID extracts the account ID from context using the interceptor config.
func extractAccountID(ctx context.Context, config *InterceptorConfig) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if config.Config.EnableSwitchAccount {
		if values := md.Get(config.Config.MetadataKeySwitchAccount); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}

	if values := md.Get(config.Config.MetadataKeyAccountID); len(values) > 0 {
		return values[0]
	}

	return ""
}
