// Package oauth2 provides provider handlers (Facebook, Google, GitHub) that
// run the redirect/callback dance with golang.org/x/oauth2 and hand a
// normalized linkauth.ProviderProfile to the application's HandleUserFunc.
package oauth2

import (
	"context"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string
	HandleUser   HandleUserFunc

	// AuthFailureUrl is where the callback redirects on a failed exchange.
	AuthFailureUrl string

	// HTTPClient overrides the client used for userinfo and token requests.
	// Used by tests to point at a mock provider.
	HTTPClient *http.Client

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	if clientId == "" {
		clientId = os.Getenv("OAUTH2_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv("OAUTH2_CALLBACK_URL")
	}
	out := &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleUser:     handleUser,
		AuthFailureUrl: "/auth/fail/",
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.setupHandlers()
	return out
}

func (b *BaseOAuth2) setupHandlers() {
	b.mux.HandleFunc("/", OauthRedirector(&b.oauthConfig))
}

func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// ExchangeContext returns the context used for the token exchange, carrying
// the injectable HTTP client so tests can stub the token endpoint.
func (b *BaseOAuth2) ExchangeContext() context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(context.Background(), oauth2.HTTPClient, b.HTTPClient)
	}
	return context.Background()
}
