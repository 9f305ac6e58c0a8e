package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsehook/pulsehook/internal/config"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/platform"
	"github.com/pulsehook/pulsehook/internal/store"
	"github.com/pulsehook/pulsehook/internal/webhook"
)

const testSecret = "s3cret"

type fakeEvents struct {
	inserted       []event.Event
	dispatchFailed map[string]string
	replayed       []string
	insertErr      error
	failOnce       bool // fail the first Insert only
}

func (f *fakeEvents) Insert(_ context.Context, ev event.Event) error {
	if f.insertErr != nil {
		err := f.insertErr
		if f.failOnce {
			f.insertErr = nil
		}
		return err
	}
	f.inserted = append(f.inserted, ev)
	return nil
}

func (f *fakeEvents) MarkDispatchFailed(_ context.Context, id, lastErr string) error {
	if f.dispatchFailed == nil {
		f.dispatchFailed = make(map[string]string)
	}
	f.dispatchFailed[id] = lastErr
	return nil
}

func (f *fakeEvents) Get(_ context.Context, id string) (event.Event, error) {
	for _, ev := range f.inserted {
		if ev.ID == id {
			return ev, nil
		}
	}
	return event.Event{}, errors.New("not found")
}

func (f *fakeEvents) List(_ context.Context, _ store.ListFilter) ([]event.Event, error) {
	return f.inserted, nil
}

func (f *fakeEvents) ResetForReplay(ctx context.Context, id string) (event.Event, error) {
	ev, err := f.Get(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	f.replayed = append(f.replayed, id)
	ev.Status = event.StatusReceived
	ev.Attempts = 0
	return ev, nil
}

type fakeAccountStore struct {
	byPlatformUser map[string]store.Account
	byID           map[string]store.Account
	upserted       []store.Account
	tokens         map[string]string
	errored        map[string]string
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		byPlatformUser: map[string]store.Account{},
		byID:           map[string]store.Account{},
		tokens:         map[string]string{},
		errored:        map[string]string{},
	}
}

func (f *fakeAccountStore) Upsert(_ context.Context, a store.Account) (string, error) {
	f.upserted = append(f.upserted, a)
	return "acct-new", nil
}

func (f *fakeAccountStore) Get(_ context.Context, id string) (store.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return store.Account{}, store.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccountStore) FindByPlatformUser(_ context.Context, _, platformUserID string) (store.Account, error) {
	a, ok := f.byPlatformUser[platformUserID]
	if !ok {
		return store.Account{}, store.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccountStore) List(_ context.Context) ([]store.Account, error) {
	var out []store.Account
	for _, a := range f.byID {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAccountStore) UpdateToken(_ context.Context, id, token string, _ time.Time) error {
	f.tokens[id] = token
	return nil
}

func (f *fakeAccountStore) MarkError(_ context.Context, id, message string) error {
	f.errored[id] = message
	return nil
}

type fakeDispatcher struct {
	published []event.Event
	err       error
}

func (f *fakeDispatcher) PublishEvent(_ context.Context, ev event.Event) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, ev)
	return nil
}

type fakeExchanger struct {
	token      platform.Token
	profile    platform.Profile
	refreshErr error
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, _, _ string) (platform.Token, error) {
	return f.token, nil
}

func (f *fakeExchanger) RefreshToken(_ context.Context, _ string) (platform.Token, error) {
	if f.refreshErr != nil {
		return platform.Token{}, f.refreshErr
	}
	return f.token, nil
}

func (f *fakeExchanger) GetProfile(_ context.Context, _ string) (platform.Profile, error) {
	return f.profile, nil
}

type apiFixture struct {
	app        *fiber.App
	events     *fakeEvents
	accounts   *fakeAccountStore
	dispatcher *fakeDispatcher
	exchanger  *fakeExchanger
}

func newAPIFixture() *apiFixture {
	cfg := config.Config{AppName: "pulsehook-test"}
	cfg.Instagram.AppSecret = testSecret
	cfg.Instagram.VerifyToken = "verify-me"

	f := &apiFixture{
		events:     &fakeEvents{},
		accounts:   newFakeAccountStore(),
		dispatcher: &fakeDispatcher{},
		exchanger: &fakeExchanger{
			token:   platform.Token{AccessToken: "long-token", ExpiresAt: time.Now().Add(60 * 24 * time.Hour)},
			profile: platform.Profile{ID: "17841400000000001", Username: "acme_store"},
		},
	}
	srv := &Server{
		cfg:        cfg,
		events:     f.events,
		accounts:   f.accounts,
		dispatcher: f.dispatcher,
		ig:         f.exchanger,
		log:        logging.New("api-test"),
	}
	f.app = srv.Router(nil)
	return f
}

func TestVerifyChallenge(t *testing.T) {
	f := newAPIFixture()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"valid handshake", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", fiber.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", fiber.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", fiber.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/webhooks/instagram?"+tt.query, nil)
			resp, err := f.app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
		})
	}
}

func TestWebhook_ValidDelivery(t *testing.T) {
	f := newAPIFixture()
	f.accounts.byPlatformUser["17841400000000001"] = store.Account{ID: "acct-1"}

	body := []byte(`{"object":"instagram","entry":[{"id":"17841400000000001","time":1717240000,"changes":[` +
		`{"field":"comments","value":{"id":"c-1","text":"love it"}},` +
		`{"field":"likes","value":{"media_id":"m-1","like_count":42}}]}]}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex(testSecret, body))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(f.events.inserted) != 2 {
		t.Fatalf("inserted %d events, want 2", len(f.events.inserted))
	}
	if got := f.events.inserted[0]; string(got.Kind) != "comment" || string(got.Priority) != "medium" || got.AccountID != "acct-1" {
		t.Errorf("first event = kind %s priority %s account %s", got.Kind, got.Priority, got.AccountID)
	}
	if got := f.events.inserted[1]; string(got.Kind) != "like" || string(got.Priority) != "low" {
		t.Errorf("second event = kind %s priority %s", got.Kind, got.Priority)
	}
	if len(f.dispatcher.published) != 2 {
		t.Errorf("published %d events, want 2", len(f.dispatcher.published))
	}
	if want := time.Unix(1717240000, 0).UTC(); !f.events.inserted[0].OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", f.events.inserted[0].OccurredAt, want)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newAPIFixture()
	body := []byte(`{"object":"instagram","entry":[]}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, "sha256=deadbeef")
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if len(f.events.inserted) != 0 {
		t.Errorf("stored %d events from unsigned delivery", len(f.events.inserted))
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	f := newAPIFixture()
	body := []byte(`{"object":"instagram","entry":[]}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	f := newAPIFixture()
	body := []byte(`{"object":`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex(testSecret, body))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhook_PerChangeFailureDoesNotAbortSiblings(t *testing.T) {
	f := newAPIFixture()
	f.events.insertErr = errors.New("db down")
	f.events.failOnce = true

	body := []byte(`{"object":"instagram","entry":[{"id":"u-1","changes":[` +
		`{"field":"comments","value":{"id":"c-1"}},` +
		`{"field":"mentions","value":{"comment_id":"mc-1"}}]}]}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex(testSecret, body))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(f.events.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1 (second change survives)", len(f.events.inserted))
	}
	if string(f.events.inserted[0].Kind) != "mention" {
		t.Errorf("surviving event kind = %s, want mention", f.events.inserted[0].Kind)
	}
}

func TestWebhook_DispatchFailureHandsEventToSweep(t *testing.T) {
	f := newAPIFixture()
	f.dispatcher.err = errors.New("nsqd unreachable")

	// errors has an attempt ceiling of 1: a publish failure that consumed an
	// attempt would make the event unclaimable by the retry sweep forever.
	body := []byte(`{"object":"instagram","entry":[{"id":"u-1","changes":[{"field":"errors","value":{"message":"token expired","code":190}}]}]}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex(testSecret, body))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(f.events.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(f.events.inserted))
	}
	ev := f.events.inserted[0]
	if reason, ok := f.events.dispatchFailed[ev.ID]; !ok {
		t.Error("event was not marked dispatch-failed after publish error")
	} else if !strings.HasPrefix(reason, "dispatch: ") {
		t.Errorf("dispatch failure reason = %q, want dispatch: prefix", reason)
	}
	if ev.Attempts != 0 {
		t.Errorf("attempts = %d, want 0: publish failures must not consume processing attempts", ev.Attempts)
	}
}

func TestWebhook_UnknownFieldStoredVerbatim(t *testing.T) {
	f := newAPIFixture()

	body := []byte(`{"object":"instagram","entry":[{"id":"u-1","changes":[{"field":"new_feature","value":{"x":1}}]}]}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/instagram", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex(testSecret, body))
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if len(f.events.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(f.events.inserted))
	}
	got := f.events.inserted[0]
	if string(got.Kind) != "unknown" {
		t.Errorf("kind = %s, want unknown", got.Kind)
	}
	if string(got.Payload) != `{"x":1}` {
		t.Errorf("payload = %s, want stored verbatim", got.Payload)
	}
}
