package linkauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

// LinkAuth wires the authenticator, the resolver and the gate into an HTTP
// surface: local login/signup, logout, and a mount point for OAuth provider
// handlers whose callbacks feed SaveAccountAndRedirect.
type LinkAuth struct {
	router     *mux.Router
	Session    *scs.SessionManager
	Middleware Middleware

	// Optional name used as a prefix for derived defaults
	AppName string

	// Name of the session variable where the auth token is stored
	AuthTokenSessionVar string

	// Must be passed in
	Store    AccountStore
	Local    *LocalAuth
	Resolver *Resolver

	// All the domains where auth token cookies are set on login and cleared
	// on logout
	CookieDomains []string

	// OnAuthError, when set, takes over rendering of auth errors.
	OnAuthError AuthErrorHandler

	// JWT related fields
	JwtIssuer    string
	JWTSecretKey string

	// How long a session cookie is valid for. Defaults to 1 day
	SessionTimeoutInSeconds int
}

func New(appName string) *LinkAuth {
	return (&LinkAuth{AppName: appName}).EnsureDefaults()
}

func (a *LinkAuth) EnsureDefaults() *LinkAuth {
	if a.AppName == "" {
		a.AppName = "LinkAuth"
	}
	if a.SessionTimeoutInSeconds <= 0 {
		a.SessionTimeoutInSeconds = 86400
	}
	if a.JwtIssuer == "" {
		a.JwtIssuer = fmt.Sprintf("%s-Issuer", a.AppName)
	}
	if a.AuthTokenSessionVar == "" {
		a.AuthTokenSessionVar = fmt.Sprintf("%sAuthToken", a.AppName)
	}
	if a.JWTSecretKey == "" {
		a.JWTSecretKey = strings.TrimSpace(os.Getenv("LINKAUTH_JWT_SECRET_KEY"))
	}
	if a.Middleware.AuthTokenCookieName == "" {
		a.Middleware.AuthTokenCookieName = a.AuthTokenSessionVar
	}
	if a.Middleware.Store == nil {
		a.Middleware.Store = a.Store
	}
	if a.Middleware.VerifyToken == nil {
		a.Middleware.VerifyToken = a.verifyJWT
	}
	a.Middleware.EnsureReasonableDefaults()
	return a
}

func (a *LinkAuth) Handler() http.Handler {
	return a.setupRoutes().router
}

// AddProvider mounts an OAuth provider's redirect/callback handler under the
// given prefix (e.g. "/facebook").
func (a *LinkAuth) AddProvider(prefix string, handler http.Handler) *LinkAuth {
	a.setupRoutes()
	a.EnsureDefaults()
	prefix = strings.TrimSuffix(prefix, "/")
	a.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))
	return a
}

func (a *LinkAuth) setupRoutes() *LinkAuth {
	if a.router == nil {
		a.router = mux.NewRouter()
		a.router.HandleFunc("/login", a.onLogin).Methods(http.MethodPost)
		a.router.HandleFunc("/signup", a.onSignup).Methods(http.MethodPost)
		a.router.HandleFunc("/logout", a.onLogout)
	}
	return a
}

func (a *LinkAuth) verifyJWT(tokenString string) (loggedInAccountId string, t any, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(a.JWTSecretKey), nil
	})
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if sub == "" {
		return "", nil, fmt.Errorf("subject not found")
	} else if err != nil {
		return "", nil, err
	}
	return sub, token, nil
}

// parseCredentialsBody accepts form or JSON bodies with email and password
// fields.
func parseCredentialsBody(r *http.Request) (email, password string, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", fmt.Errorf("invalid post body")
		}
		email, _ = data["email"].(string)
		password, _ = data["password"].(string)
	} else {
		if err := r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		email = r.FormValue("email")
		password = r.FormValue("password")
	}
	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password required")
	}
	return email, password, nil
}

func (a *LinkAuth) onLogin(w http.ResponseWriter, r *http.Request) {
	if a.Local == nil {
		http.Error(w, `{"error": "Login not configured"}`, http.StatusInternalServerError)
		return
	}

	email, password, err := parseCredentialsBody(r)
	if err != nil {
		a.writeAuthError(w, r, NewAuthError(ErrCodeMissingField, err.Error(), "email"), http.StatusBadRequest)
		return
	}

	account, err := a.Local.Authenticate(r.Context(), email, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrStoreUnavailable):
			a.writeAuthError(w, r, NewAuthError(ErrCodeStoreUnavailable, "Service unavailable, try again", ""), http.StatusServiceUnavailable)
		default:
			// Unknown email, missing local credential and bad password all
			// collapse into one message so account existence stays hidden.
			slog.Info("login failed", "reason", err)
			a.writeAuthError(w, r, NewAuthError(ErrCodeInvalidCreds, "Invalid email or password", "password"), http.StatusUnauthorized)
		}
		return
	}

	a.setLoggedInAccount(account, w, r)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "account_id": account.ID})
}

func (a *LinkAuth) onSignup(w http.ResponseWriter, r *http.Request) {
	if a.Local == nil {
		http.Error(w, `{"error": "Signup not configured"}`, http.StatusInternalServerError)
		return
	}

	email, password, err := parseCredentialsBody(r)
	if err != nil {
		a.writeAuthError(w, r, NewAuthError(ErrCodeMissingField, err.Error(), "email"), http.StatusBadRequest)
		return
	}

	account, err := a.Local.Register(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			a.writeAuthError(w, r, NewAuthError(ErrCodeEmailExists, "Email is already registered", "email"), http.StatusConflict)
		} else {
			a.writeAuthError(w, r, NewAuthError(ErrCodeStoreUnavailable, "Service unavailable, try again", ""), http.StatusServiceUnavailable)
		}
		return
	}

	a.setLoggedInAccount(account, w, r)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "account_id": account.ID})
}

func (a *LinkAuth) onLogout(w http.ResponseWriter, r *http.Request) {
	a.setLoggedInAccount(nil, w, r)
	toUrl := r.URL.Query()["to"]
	if len(toUrl) == 0 || toUrl[0] == "" {
		fmt.Fprintf(w, "Logged Out")
	} else {
		http.Redirect(w, r, toUrl[0], http.StatusFound)
	}
}

// SaveAccountAndRedirect is the callback target for OAuth provider handlers
// after a successful exchange. It runs the resolver against the current
// session (if any) and turns the outcome into a session + redirect, or a
// conflict response with no session change.
func (a *LinkAuth) SaveAccountAndRedirect(provider string, token *oauth2.Token, profile ProviderProfile, w http.ResponseWriter, r *http.Request) {
	var current *Account
	if accountId := a.Middleware.GetLoggedInAccountId(r); accountId != "" {
		loaded, err := a.Store.GetAccountByID(r.Context(), accountId)
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			http.Error(w, "Account lookup failed", http.StatusServiceUnavailable)
			return
		}
		current = loaded
	}

	res, err := a.Resolver.Resolve(r.Context(), current, provider, profile, token.AccessToken)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			http.Error(w, "Service unavailable, try again", http.StatusServiceUnavailable)
		} else {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
		return
	}

	if res.Outcome == ConflictOutcome {
		a.writeAuthError(w, r, NewAuthError(ErrCodeConflict, res.Reason, ""), http.StatusConflict)
		return
	}

	log.Println("resolved", provider, "sign-in:", res.Outcome.String())
	a.setLoggedInAccount(res.Account, w, r)

	// Auth done - go back to where we need to be
	callbackURL := "/"
	if callbackCookie, _ := r.Cookie("oauthCallbackURL"); callbackCookie != nil && callbackCookie.Value != "" {
		callbackURL = callbackCookie.Value
	}
	u, _ := url.Parse(callbackURL)
	if u != nil && u.Scheme == "" {
		callbackURL = os.Getenv("OAUTH2_BASE_URL") + callbackURL
	}
	// delete it too so it wont be used for subsequent redirects
	http.SetCookie(w, &http.Cookie{
		Name:   "oauthCallbackURL",
		Value:  "",
		Path:   "/",
		MaxAge: -1, Expires: time.Now(),
	})
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

// setLoggedInAccount sets (or, with a nil account, clears) the session and the
// auth token cookies on every configured cookie domain.
func (a *LinkAuth) setLoggedInAccount(account *Account, w http.ResponseWriter, r *http.Request) string {
	a.EnsureDefaults()
	domains := a.CookieDomains
	if slices.Index(a.CookieDomains, "") < 0 { // default domain
		domains = append(domains, "")
	}

	tokenString := ""
	if account != nil {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": account.ID,
			"iss": a.JwtIssuer,
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
		})
		signed, err := token.SignedString([]byte(a.JWTSecretKey))
		if err != nil {
			slog.Info("error signing token", "err", err)
		}
		tokenString = signed
		a.Session.Put(r.Context(), a.Middleware.AccountParamName, account.ID)
		a.Session.Put(r.Context(), a.AuthTokenSessionVar, tokenString)
	} else {
		if err := a.Session.Clear(r.Context()); err != nil {
			slog.Warn("error clearing session ", "err", err)
		}
	}

	for _, cookieDomain := range domains {
		http.SetCookie(w, &http.Cookie{
			Name:   "oauthstate",
			Value:  "",
			MaxAge: -1, Expires: time.Now(),
			Domain: cookieDomain,
			Path:   "/",
		})

		if account != nil {
			http.SetCookie(w, &http.Cookie{
				Name:    "loggedInAccountId",
				Value:   account.ID,
				Domain:  cookieDomain,
				Path:    "/",
				Expires: time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)), MaxAge: a.SessionTimeoutInSeconds,
			})
			http.SetCookie(w, &http.Cookie{
				Name:    a.AuthTokenSessionVar,
				Value:   tokenString,
				Domain:  cookieDomain,
				Path:    "/",
				Expires: time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)), MaxAge: a.SessionTimeoutInSeconds,
			})
		} else {
			http.SetCookie(w, &http.Cookie{
				Name:    "loggedInAccountId",
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
			http.SetCookie(w, &http.Cookie{
				Name:    a.AuthTokenSessionVar,
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
		}
	}
	return tokenString
}

func (a *LinkAuth) writeAuthError(w http.ResponseWriter, r *http.Request, err *AuthError, status int) {
	if a.OnAuthError != nil && a.OnAuthError(err, w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(err)
}
