package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fluffle-tools/gateway/src/webclient"
)

const (
	authorizeEndpoint = "https://discord.com/api/oauth2/authorize"
	tokenEndpoint     = "https://discord.com/api/oauth2/token"
)

// OAuth drives the authorization-code flow against Discord.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	http *http.Client
}

func NewOAuth(clientID, clientSecret, redirectURL string) *OAuth {
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"identify", "guilds"},
		http:         webclient.NewDefault(10 * time.Second),
	}
}

// AuthorizeURL is where the browser is sent to begin login.
func (o *OAuth) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("redirect_uri", o.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(o.Scopes, " "))
	q.Set("state", state)
	return authorizeEndpoint + "?" + q.Encode()
}

// Exchange trades an authorization code for a user access token.
// Transient Discord failures are retried once.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", o.RedirectURL)
	encoded := form.Encode()

	status, body, err := webclient.DoWithRetry(ctx, 2, time.Second, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(encoded))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := o.http.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return resp.StatusCode, nil, err
		}
		return resp.StatusCode, body, nil
	})
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("token exchange rejected (status %d)", status)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return tok.AccessToken, nil
}
