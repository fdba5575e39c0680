package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/linkauth/linkauth"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch user info from. Defaults to GitHub's
	// API. Can be overridden for testing.
	UserInfoURL string
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GithubOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}

	out := GithubOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleUser),
		UserInfoURL: "https://api.github.com/user",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = github.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"read:user", "user:email",
	}

	out.mux.HandleFunc("/callback/", out.handleCallback)

	return &out
}

func (g *GithubOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "invalid oauth github state", http.StatusBadRequest)
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
			g.HandleUser("github", token, profile, w, r)
		}
	}
	if err != nil {
		slog.Info("redirecting due to error ", "err", err)
		http.Redirect(w, r, g.AuthFailureUrl, http.StatusTemporaryRedirect)
	}
}

func (g *GithubOAuth2) fetchProfile(token *oauth2.Token) (linkauth.ProviderProfile, error) {
	var profile linkauth.ProviderProfile

	req, err := http.NewRequest("GET", g.UserInfoURL, nil)
	if err != nil {
		return profile, fmt.Errorf("failed to create request: %s", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := g.getHTTPClient().Do(req)
	if err != nil {
		return profile, fmt.Errorf("failed getting user info from github: %s", err.Error())
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
	return NormalizeGithubProfile(raw), nil
}

// NormalizeGithubProfile maps an api.github.com/user response onto a
// ProviderProfile. GitHub ids are numeric and the display name is a single
// field, split at the first space.
func NormalizeGithubProfile(raw map[string]any) linkauth.ProviderProfile {
	var profile linkauth.ProviderProfile
	switch id := raw["id"].(type) {
	case float64:
		profile.SubjectID = strconv.FormatInt(int64(id), 10)
	case string:
		profile.SubjectID = id
	}
	profile.Email, _ = raw["email"].(string)
	if name, ok := raw["name"].(string); ok {
		profile.GivenName, profile.FamilyName = splitName(name)
	}
	profile.PictureURL, _ = raw["avatar_url"].(string)
	profile.LocationName, _ = raw["location"].(string)
	return profile
}
