package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsehook/pulsehook/internal/config"
)

func newTestClient(graph, oauth string) *InstagramClient {
	return NewInstagramClient(config.Instagram{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		GraphBaseURL: graph,
		OAuthBaseURL: oauth,
	})
}

func TestExchangeCode(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/access_token" {
			t.Errorf("graph path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "ig_exchange_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.URL.Query().Get("access_token"); got != "short-token" {
			t.Errorf("access_token = %q, want short-token", got)
		}
		w.Write([]byte(`{"access_token":"long-token","token_type":"bearer","expires_in":5184000}`))
	}))
	defer graph.Close()

	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/access_token" {
			t.Errorf("oauth request = %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("code"); got != "auth-code" {
			t.Errorf("code = %q", got)
		}
		if got := r.PostForm.Get("redirect_uri"); got != "https://app.example.com/cb" {
			t.Errorf("redirect_uri = %q", got)
		}
		w.Write([]byte(`{"access_token":"short-token","user_id":17841400000000001}`))
	}))
	defer oauth.Close()

	c := newTestClient(graph.URL, oauth.URL)
	tok, err := c.ExchangeCode(context.Background(), "auth-code", "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("ExchangeCode() error: %v", err)
	}
	if tok.AccessToken != "long-token" {
		t.Errorf("AccessToken = %q, want long-token", tok.AccessToken)
	}
	wantExpiry := time.Now().Add(5184000 * time.Second)
	if d := tok.ExpiresAt.Sub(wantExpiry); d < -time.Minute || d > time.Minute {
		t.Errorf("ExpiresAt = %v, want about %v", tok.ExpiresAt, wantExpiry)
	}
}

func TestExchangeCode_PlatformRejects(t *testing.T) {
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_type":"OAuthException","error_message":"Invalid authorization code"}`))
	}))
	defer oauth.Close()

	c := newTestClient("http://unused.invalid", oauth.URL)
	_, err := c.ExchangeCode(context.Background(), "bad-code", "https://app.example.com/cb")
	if err == nil {
		t.Fatal("expected error for rejected code")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
}

func TestRefreshToken(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refresh_access_token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "ig_refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.Write([]byte(`{"access_token":"refreshed","token_type":"bearer","expires_in":5184000}`))
	}))
	defer graph.Close()

	c := newTestClient(graph.URL, "http://unused.invalid")
	tok, err := c.RefreshToken(context.Background(), "old-token")
	if err != nil {
		t.Fatalf("RefreshToken() error: %v", err)
	}
	if tok.AccessToken != "refreshed" {
		t.Errorf("AccessToken = %q, want refreshed", tok.AccessToken)
	}
}

func TestGetProfile(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("fields"); got != "id,username" {
			t.Errorf("fields = %q", got)
		}
		w.Write([]byte(`{"id":"17841400000000001","username":"acme_store"}`))
	}))
	defer graph.Close()

	c := newTestClient(graph.URL, "http://unused.invalid")
	p, err := c.GetProfile(context.Background(), "long-token")
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	if p.ID != "17841400000000001" || p.Username != "acme_store" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestGetProfile_MalformedResponse(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer graph.Close()

	c := newTestClient(graph.URL, "http://unused.invalid")
	if _, err := c.GetProfile(context.Background(), "tok"); err == nil {
		t.Fatal("expected error for malformed body")
	}
}
