package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/store"
)

type fakeAccounts struct {
	accounts map[string]store.Account
	errored  map[string]string
}

func (f *fakeAccounts) Get(_ context.Context, id string) (store.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return store.Account{}, store.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) MarkError(_ context.Context, id, message string) error {
	if f.errored == nil {
		f.errored = make(map[string]string)
	}
	f.errored[id] = message
	return nil
}

type fakeComments struct {
	upserted []store.Comment
	created  bool
	err      error
}

func (f *fakeComments) Upsert(_ context.Context, c store.Comment) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	f.upserted = append(f.upserted, c)
	return "row-1", f.created, nil
}

type fakeMentions struct {
	upserted []store.Mention
	created  bool
}

func (f *fakeMentions) Upsert(_ context.Context, m store.Mention) (string, bool, error) {
	f.upserted = append(f.upserted, m)
	return "row-1", f.created, nil
}

type fakeMessages struct {
	upserted []store.Message
	created  bool
}

func (f *fakeMessages) Upsert(_ context.Context, m store.Message) (string, bool, error) {
	f.upserted = append(f.upserted, m)
	return "row-1", f.created, nil
}

type fakeMilestones struct {
	recorded []store.Milestone
	existing map[string]bool // account|post|kind already present
}

func (f *fakeMilestones) Record(_ context.Context, m store.Milestone) (bool, error) {
	key := m.AccountID + "|" + m.PostID + "|" + m.Kind
	if f.existing[key] {
		return false, nil
	}
	f.recorded = append(f.recorded, m)
	return true, nil
}

type fakeNotifier struct {
	sent []event.Notification
}

func (f *fakeNotifier) PublishNotification(_ context.Context, prefs store.Preferences, n event.Notification) (bool, error) {
	f.sent = append(f.sent, n)
	return true, nil
}

type fixture struct {
	proc       *Processor
	accounts   *fakeAccounts
	comments   *fakeComments
	mentions   *fakeMentions
	messages   *fakeMessages
	milestones *fakeMilestones
	notifier   *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		accounts: &fakeAccounts{accounts: map[string]store.Account{
			"acct-1": {
				ID:             "acct-1",
				Platform:       "instagram",
				PlatformUserID: "17841400000000001",
				Preferences:    store.Preferences{NotifyComments: true, NotifyMilestones: true},
			},
		}},
		comments:   &fakeComments{created: true},
		mentions:   &fakeMentions{created: true},
		messages:   &fakeMessages{created: true},
		milestones: &fakeMilestones{existing: map[string]bool{}},
		notifier:   &fakeNotifier{},
	}
	f.proc = &Processor{
		Accounts:   f.accounts,
		Comments:   f.comments,
		Mentions:   f.mentions,
		Messages:   f.messages,
		Milestones: f.milestones,
		Notifier:   f.notifier,
		Log:        logging.New("processor-test"),
		Now:        func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func task(kind, priority string, value string) event.Task {
	return event.Task{
		EventID:   "evt-1",
		AccountID: "acct-1",
		Platform:  "instagram",
		Kind:      kind,
		Priority:  priority,
		Value:     json.RawMessage(value),
	}
}

func TestHandleComment(t *testing.T) {
	f := newFixture()
	tk := task("comment", "medium", `{"id":"c-77","text":"love this, amazing work","from":{"username":"fan42"},"media":{"id":"m-1"}}`)

	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.comments.upserted) != 1 {
		t.Fatalf("upserted %d comments, want 1", len(f.comments.upserted))
	}
	got := f.comments.upserted[0]
	if got.PlatformCommentID != "c-77" || got.AccountID != "acct-1" || got.MediaID != "m-1" {
		t.Errorf("unexpected comment: %+v", got)
	}
	if got.SentimentLabel != "positive" {
		t.Errorf("SentimentLabel = %q, want positive", got.SentimentLabel)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(f.notifier.sent))
	}
	if f.notifier.sent[0].Kind != "comment" {
		t.Errorf("notification kind = %q, want comment", f.notifier.sent[0].Kind)
	}
}

func TestHandleComment_DuplicateDeliveryDoesNotNotify(t *testing.T) {
	f := newFixture()
	f.comments.created = false

	tk := task("comment", "medium", `{"id":"c-77","text":"again","from":{"username":"fan42"}}`)
	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("duplicate delivery published %d notifications, want 0", len(f.notifier.sent))
	}
}

func TestHandleComment_UpsertFailureIsRetryable(t *testing.T) {
	f := newFixture()
	f.comments.err = errors.New("connection reset")

	tk := task("comment", "medium", `{"id":"c-77","text":"hi"}`)
	err := f.proc.Handle(context.Background(), tk)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error %q does not wrap the store failure", err)
	}
}

func TestHandleComment_UnknownAccountIsNoOp(t *testing.T) {
	f := newFixture()

	tk := task("comment", "medium", `{"id":"c-77","text":"hi"}`)
	tk.AccountID = "acct-missing"
	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.comments.upserted) != 0 {
		t.Errorf("upserted %d comments for missing account, want 0", len(f.comments.upserted))
	}
}

func TestHandleMention(t *testing.T) {
	f := newFixture()
	tk := task("mention", "high", `{"comment_id":"mc-1","media_id":"m-9","text":"terrible awful experience","from":{"username":"critic"}}`)

	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.mentions.upserted) != 1 {
		t.Fatalf("upserted %d mentions, want 1", len(f.mentions.upserted))
	}
	got := f.mentions.upserted[0]
	if got.PlatformMentionID != "mc-1" {
		t.Errorf("PlatformMentionID = %q, want mc-1", got.PlatformMentionID)
	}
	if got.SentimentLabel != "negative" {
		t.Errorf("SentimentLabel = %q, want negative", got.SentimentLabel)
	}
}

func TestHandleMention_FallsBackToMediaID(t *testing.T) {
	f := newFixture()
	tk := task("mention", "high", `{"media_id":"m-9","text":"tagged you"}`)

	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if got := f.mentions.upserted[0].PlatformMentionID; got != "m-9" {
		t.Errorf("PlatformMentionID = %q, want m-9", got)
	}
}

func TestHandleMessage(t *testing.T) {
	f := newFixture()
	tk := task("message", "high", `{"sender":{"id":"u-5"},"message":{"mid":"mid-1","text":"when do you restock"}}`)

	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.messages.upserted) != 1 {
		t.Fatalf("upserted %d messages, want 1", len(f.messages.upserted))
	}
	got := f.messages.upserted[0]
	if got.PlatformMessageID != "mid-1" || got.Sender != "u-5" {
		t.Errorf("unexpected message: %+v", got)
	}
	if got.SentimentScore != 0.5 || got.SentimentLabel != "neutral" {
		t.Errorf("neutral text scored %v/%s", got.SentimentScore, got.SentimentLabel)
	}
}

func TestHandleEngagement_Milestones(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"below first threshold", `{"media_id":"m-1","like_count":99}`, nil},
		{"first likes threshold", `{"media_id":"m-1","like_count":150}`, []string{"likes_100"}},
		{"two thresholds at once", `{"media_id":"m-1","like_count":2500}`, []string{"likes_100", "likes_1k"}},
		{"all three", `{"media_id":"m-1","like_count":10000}`, []string{"likes_100", "likes_1k", "likes_10k"}},
		{"comments too", `{"media_id":"m-1","like_count":120,"comment_count":1001}`,
			[]string{"likes_100", "comments_100", "comments_1k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if err := f.proc.Handle(context.Background(), task("like", "low", tt.value)); err != nil {
				t.Fatalf("Handle() error: %v", err)
			}
			var got []string
			for _, m := range f.milestones.recorded {
				got = append(got, m.Kind)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("recorded %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("recorded %v, want %v", got, tt.want)
					break
				}
			}
			if len(f.notifier.sent) != len(tt.want) {
				t.Errorf("sent %d milestone notifications, want %d", len(f.notifier.sent), len(tt.want))
			}
		})
	}
}

func TestHandleEngagement_AlreadyRecordedIsSilent(t *testing.T) {
	f := newFixture()
	f.milestones.existing["acct-1|m-1|likes_100"] = true

	if err := f.proc.Handle(context.Background(), task("like", "low", `{"media_id":"m-1","like_count":200}`)); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.milestones.recorded) != 0 {
		t.Errorf("re-recorded %d milestones, want 0", len(f.milestones.recorded))
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("re-notified %d times, want 0", len(f.notifier.sent))
	}
}

func TestHandleError_MarksAccount(t *testing.T) {
	f := newFixture()
	tk := task("error", "critical", `{"message":"token expired","code":190}`)

	if err := f.proc.Handle(context.Background(), tk); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if got := f.accounts.errored["acct-1"]; got != "token expired" {
		t.Errorf("account error message = %q, want %q", got, "token expired")
	}
}

func TestHandleUnknownKindIsNoOp(t *testing.T) {
	f := newFixture()
	if err := f.proc.Handle(context.Background(), task("unknown", "low", `{"whatever":true}`)); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(f.comments.upserted)+len(f.mentions.upserted)+len(f.messages.upserted) != 0 {
		t.Error("unknown kind derived rows")
	}
}

func TestHandleMalformedValue(t *testing.T) {
	f := newFixture()
	if err := f.proc.Handle(context.Background(), task("comment", "medium", `{"id":`)); err == nil {
		t.Fatal("expected decode error for malformed value")
	}
}
