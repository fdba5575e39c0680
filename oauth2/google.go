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
	"golang.org/x/oauth2/google"

	"github.com/linkauth/linkauth"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL can be overridden for testing.
	UserInfoURL string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GoogleOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL"))
	}

	out := GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleUser),
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = google.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}

	out.mux.HandleFunc("/callback/", out.handleCallback)

	return &out
}

func (g *GoogleOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "invalid oauth google state", http.StatusBadRequest)
		return
	}

	code := r.FormValue("code")
	token, err := g.oauthConfig.Exchange(g.ExchangeContext(), code)
	if err != nil {
		slog.Info("Invalid code exchange", "err", err)
	} else {
		var profile linkauth.ProviderProfile
		profile, err = g.fetchProfile(token)
		if err == nil {
			g.HandleUser("google", token, profile, w, r)
		}
	}
	if err != nil {
		slog.Info("redirecting due to error ", "err", err)
		http.Redirect(w, r, g.AuthFailureUrl, http.StatusTemporaryRedirect)
	}
}

func (g *GoogleOAuth2) fetchProfile(token *oauth2.Token) (linkauth.ProviderProfile, error) {
	var profile linkauth.ProviderProfile

	response, err := g.getHTTPClient().Get(g.UserInfoURL + "?access_token=" + token.AccessToken)
	if err != nil {
		return profile, fmt.Errorf("failed getting user info: %s", err.Error())
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
	return NormalizeGoogleProfile(raw), nil
}

// NormalizeGoogleProfile maps a v2 userinfo response onto a ProviderProfile.
func NormalizeGoogleProfile(raw map[string]any) linkauth.ProviderProfile {
	var profile linkauth.ProviderProfile
	profile.SubjectID, _ = raw["id"].(string)
	profile.Email, _ = raw["email"].(string)
	profile.GivenName, _ = raw["given_name"].(string)
	profile.FamilyName, _ = raw["family_name"].(string)
	profile.Gender, _ = raw["gender"].(string)
	profile.PictureURL, _ = raw["picture"].(string)
	return profile
}
