package linkauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type accountParamNameKey string

// Middleware extracts the logged-in account from a request (session first,
// then auth token header/cookie) and gates provider-specific routes.
type Middleware struct {
	AuthTokenHeaderName string
	AuthTokenCookieName string
	AccountParamName    string
	CallbackURLParam    string
	SessionGetter       func(r *http.Request, param string) any
	GetRedirURL         func(r *http.Request) string
	DefaultRedirectURL  string
	VerifyToken         func(tokenString string) (loggedInAccountId string, token any, err error)

	// Store is used by EnsureProvider to load the account for the gate check.
	Store AccountStore
}

// EnsureReasonableDefaults fills in config defaults.
func (a *Middleware) EnsureReasonableDefaults() {
	if a.AccountParamName == "" {
		a.AccountParamName = "loggedInAccountId"
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
}

// GetLoggedInAccountId returns the id of the logged in account for the
// request, checking the request context, then the session, then any auth
// tokens presented via header or cookie.
func (a *Middleware) GetLoggedInAccountId(r *http.Request) string {
	v := r.Context().Value(accountParamNameKey(a.AccountParamName))
	if v != nil {
		if accountId, ok := v.(string); ok && accountId != "" {
			return accountId
		}
	}

	if a.SessionGetter != nil {
		accountParam := a.SessionGetter(r, a.AccountParamName)
		if accountParam != "" && accountParam != nil {
			return accountParam.(string)
		}
	}

	if a.VerifyToken == nil {
		slog.Warn("No auth token verifier found.  Please set one")
		return ""
	}

	// Otherwise check the Auth header and cookies
	authTokens := r.Header.Values(a.AuthTokenHeaderName)
	for _, cookie := range r.CookiesNamed(a.AuthTokenCookieName) {
		if len(cookie.Value) > 0 {
			authTokens = append(authTokens, cookie.Value)
		}
	}

	for _, authToken := range authTokens {
		authToken = strings.TrimPrefix(authToken, "Bearer ")
		accountId, _, err := a.VerifyToken(authToken)
		if err == nil && accountId != "" {
			return accountId
		} else if err != nil {
			slog.Warn("error verifying token", "error", err)
		}
	}
	return ""
}

// ExtractAccount loads the logged in account id into the request context for
// downstream handlers. It never redirects; use EnsureAccount to enforce a
// login.
func (a *Middleware) ExtractAccount(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			accountId := a.GetLoggedInAccountId(r)
			next.ServeHTTP(w, a.setLoggedInAccountId(accountId, r))
		},
	)
}

// EnsureAccount enforces a logged in account, redirecting to the configured
// login URL (with a callback back to the original path) or returning a 401.
func (a *Middleware) EnsureAccount(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			accountId := a.GetLoggedInAccountId(r)
			if accountId == "" {
				redirUrl := ""
				if a.GetRedirURL != nil {
					redirUrl = a.GetRedirURL(r)
				}
				if redirUrl != "" {
					originalUrl := r.URL.Path
					encodedUrl := strings.Replace(url.QueryEscape(originalUrl), "+", "%20", -1)
					fullRedirUrl := fmt.Sprintf("%s?%s=%s", redirUrl, a.CallbackURLParam, encodedUrl)
					http.Redirect(w, r, fullRedirUrl, http.StatusFound)
				} else {
					http.Error(w, "Login Required", http.StatusUnauthorized)
				}
				return
			}
			next.ServeHTTP(w, a.setLoggedInAccountId(accountId, r))
		},
	)
}

// EnsureProvider enforces that the logged in account holds a linked identity
// for the provider, redirecting to the provider's auth flow when it does not.
// Requires Store to be set.
func (a *Middleware) EnsureProvider(provider string, next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return a.EnsureAccount(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			accountId := a.GetLoggedInAccountId(r)
			account, err := a.Store.GetAccountByID(r.Context(), accountId)
			if err != nil {
				http.Error(w, "Account lookup failed", http.StatusInternalServerError)
				return
			}
			if !IsAuthorized(account, provider) {
				http.Redirect(w, r, "/auth/"+provider, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		},
	))
}

// setLoggedInAccountId makes the account id available to downstream handlers
// via a request scoped variable.
func (a *Middleware) setLoggedInAccountId(accountId string, r *http.Request) *http.Request {
	ctxWithAccount := context.WithValue(r.Context(), accountParamNameKey(a.AccountParamName), accountId)
	return r.WithContext(ctxWithAccount)
}
