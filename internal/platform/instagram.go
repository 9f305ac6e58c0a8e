package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulsehook/pulsehook/internal/config"
)

// DefaultTimeout bounds every outbound Graph API call.
const DefaultTimeout = 15 * time.Second

// Token is an access token returned by the platform, with its lifetime.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Profile is the subset of the platform user profile we store.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// APIError is a non-2xx response from the platform, preserved for account
// status messages.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Body)
}

// InstagramClient talks to the Instagram Basic Display / Graph API for OAuth
// code exchange, long-lived token management and profile lookup.
type InstagramClient struct {
	cfg    config.Instagram
	client *http.Client
}

func NewInstagramClient(cfg config.Instagram) *InstagramClient {
	return &InstagramClient{
		cfg:    cfg,
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

type shortTokenResponse struct {
	AccessToken string `json:"access_token"`
	UserID      any    `json:"user_id"` // the API returns a number here
}

type longTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds, ~60 days
}

// ExchangeCode trades an OAuth authorization code for a long-lived token in
// two hops: code -> short-lived token, short-lived -> long-lived (~60 days).
func (c *InstagramClient) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.OAuthBaseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var short shortTokenResponse
	if err := c.do(req, &short); err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}
	if short.AccessToken == "" {
		return Token{}, fmt.Errorf("exchange code: empty access token in response")
	}

	return c.longLivedToken(ctx, short.AccessToken)
}

func (c *InstagramClient) longLivedToken(ctx context.Context, shortToken string) (Token, error) {
	q := url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {c.cfg.ClientSecret},
		"access_token":  {shortToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.GraphBaseURL+"/access_token?"+q.Encode(), nil)
	if err != nil {
		return Token{}, err
	}

	var long longTokenResponse
	if err := c.do(req, &long); err != nil {
		return Token{}, fmt.Errorf("exchange long-lived token: %w", err)
	}
	return tokenFrom(long)
}

// RefreshToken extends a long-lived token before it expires. The platform only
// refreshes tokens that are at least 24h old and not yet expired.
func (c *InstagramClient) RefreshToken(ctx context.Context, accessToken string) (Token, error) {
	q := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {accessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.GraphBaseURL+"/refresh_access_token?"+q.Encode(), nil)
	if err != nil {
		return Token{}, err
	}

	var long longTokenResponse
	if err := c.do(req, &long); err != nil {
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}
	return tokenFrom(long)
}

// GetProfile fetches the authenticated user's id and username.
func (c *InstagramClient) GetProfile(ctx context.Context, accessToken string) (Profile, error) {
	q := url.Values{
		"fields":       {"id,username"},
		"access_token": {accessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.GraphBaseURL+"/me?"+q.Encode(), nil)
	if err != nil {
		return Profile{}, err
	}

	var p Profile
	if err := c.do(req, &p); err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	if p.ID == "" {
		return Profile{}, fmt.Errorf("fetch profile: empty id in response")
	}
	return p, nil
}

func (c *InstagramClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func tokenFrom(long longTokenResponse) (Token, error) {
	if long.AccessToken == "" {
		return Token{}, fmt.Errorf("empty access token in response")
	}
	expiresIn := long.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 60 * 24 * 60 * 60 // the documented ~60 day lifetime
	}
	return Token{
		AccessToken: long.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
