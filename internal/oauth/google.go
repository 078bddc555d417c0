package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ProviderGoogle = "google"

	googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	// Outbound provider calls are bounded; a hung provider must not pin a
	// request goroutine forever.
	providerTimeout = 10 * time.Second
)

// Profile is what the orchestrator needs from the provider. EmailVerified is
// only true when the provider reported the literal value true.
type Profile struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Bridge is the provider-client contract the orchestrator depends on.
type Bridge interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Tokens, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

type GoogleBridge struct {
	cfg *oauth2.Config
}

func NewGoogleBridge(clientID, clientSecret, redirectURL string) *GoogleBridge {
	return &GoogleBridge{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

func (g *GoogleBridge) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (g *GoogleBridge) Exchange(ctx context.Context, code string) (*Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

func (g *GoogleBridge) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var data struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &Profile{
		SubjectID:     data.Sub,
		Email:         data.Email,
		EmailVerified: data.EmailVerified,
		Name:          data.Name,
	}, nil
}
