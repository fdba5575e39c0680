package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/linkauth/linkauth"
)

type FacebookOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the graph API endpoint for the profile fetch. Can be
	// overridden for testing.
	UserInfoURL string
}

func NewFacebookOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *FacebookOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CALLBACK_URL"))
	}

	out := FacebookOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleUser),
		UserInfoURL: "https://graph.facebook.com/me",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = facebook.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"email", "public_profile",
	}

	out.mux.HandleFunc("/callback/", out.handleCallback)

	return &out
}

func (f *FacebookOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie("oauthstate")
	if oauthState == nil {
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != oauthState.Value {
		http.SetCookie(w, &http.Cookie{
			Name:   "oauthstate",
			MaxAge: 0,
		})
		http.Error(w, "invalid oauth facebook state", http.StatusBadRequest)
		return
	}

	code := r.FormValue("code")
	token, err := f.oauthConfig.Exchange(f.ExchangeContext(), code)
	if err != nil {
		slog.Info("Invalid code exchange", "err", err)
	} else {
		var profile linkauth.ProviderProfile
		profile, err = f.fetchProfile(token)
		if err == nil {
			f.HandleUser("facebook", token, profile, w, r)
		}
	}
	if err != nil {
		slog.Info("redirecting due to error ", "err", err)
		http.Redirect(w, r, f.AuthFailureUrl, http.StatusTemporaryRedirect)
	}
}

func (f *FacebookOAuth2) fetchProfile(token *oauth2.Token) (linkauth.ProviderProfile, error) {
	var profile linkauth.ProviderProfile

	req, err := http.NewRequest("GET", f.UserInfoURL, nil)
	if err != nil {
		return profile, fmt.Errorf("failed to create request: %s", err.Error())
	}
	q := req.URL.Query()
	q.Set("fields", "id,email,first_name,last_name,gender,location")
	q.Set("access_token", token.AccessToken)
	req.URL.RawQuery = q.Encode()

	response, err := f.getHTTPClient().Do(req)
	if err != nil {
		return profile, fmt.Errorf("failed getting user info from facebook: %s", err.Error())
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return profile, fmt.Errorf("failed read response: %s", err.Error())
	}

	var raw map[string]any
	if err := json.Unmarshal(contents, &raw); err != nil {
		return profile, fmt.Errorf("failed to parse user info: %s", err.Error())
	}
	return NormalizeFacebookProfile(raw), nil
}

// NormalizeFacebookProfile maps a graph API /me response onto a
// ProviderProfile. The picture URL is left to the resolver's per-provider
// template since the graph exposes it as a subject-id derived URL.
func NormalizeFacebookProfile(raw map[string]any) linkauth.ProviderProfile {
	var profile linkauth.ProviderProfile
	profile.SubjectID, _ = raw["id"].(string)
	profile.Email, _ = raw["email"].(string)
	profile.GivenName, _ = raw["first_name"].(string)
	profile.FamilyName, _ = raw["last_name"].(string)
	profile.Gender, _ = raw["gender"].(string)
	if location, ok := raw["location"].(map[string]any); ok {
		profile.LocationName, _ = location["name"].(string)
	}
	return profile
}
