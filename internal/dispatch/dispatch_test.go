package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pulsehook/pulsehook/internal/classify"
	"github.com/pulsehook/pulsehook/internal/config"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/store"
)

type fakePublisher struct {
	published map[string][][]byte
	err       error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][][]byte)}
}

func (f *fakePublisher) Publish(topic string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published[topic] = append(f.published[topic], body)
	return nil
}

func testTopics() config.NSQ {
	return config.NSQ{
		EventsTopic:   "process_event",
		CommentsTopic: "process_comment",
		MentionsTopic: "process_mention",
		MessagesTopic: "process_message",
		NotifyTopic:   "notifications",
		DLQTopic:      "events_dlq",
	}
}

func TestTopicFor(t *testing.T) {
	d := New(newFakePublisher(), testTopics())

	tests := []struct {
		kind classify.Kind
		want string
	}{
		{classify.KindComment, "process_comment"},
		{classify.KindMessage, "process_message"},
		{classify.KindMention, "process_mention"},
		{classify.KindLike, "process_event"},
		{classify.KindStory, "process_event"},
		{classify.KindMedia, "process_event"},
		{classify.KindError, "process_event"},
		{classify.KindUnknown, "process_event"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := d.TopicFor(tt.kind); got != tt.want {
				t.Errorf("TopicFor(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestPublishEvent(t *testing.T) {
	pub := newFakePublisher()
	d := New(pub, testTopics())

	ev := event.Event{
		ID:       "evt-1",
		Platform: "instagram",
		Kind:     classify.KindComment,
		Priority: classify.PriorityMedium,
		Payload:  json.RawMessage(`{"id":"c1","text":"nice"}`),
		Attempts: 0,
	}

	if err := d.PublishEvent(context.Background(), ev); err != nil {
		t.Fatalf("PublishEvent() error: %v", err)
	}

	msgs := pub.published["process_comment"]
	if len(msgs) != 1 {
		t.Fatalf("published %d messages to process_comment, want 1", len(msgs))
	}

	var task event.Task
	if err := json.Unmarshal(msgs[0], &task); err != nil {
		t.Fatalf("task did not round-trip: %v", err)
	}
	if task.EventID != "evt-1" {
		t.Errorf("task.EventID = %q, want %q", task.EventID, "evt-1")
	}
	if task.Kind != "comment" {
		t.Errorf("task.Kind = %q, want %q", task.Kind, "comment")
	}
	if string(task.Value) != `{"id":"c1","text":"nice"}` {
		t.Errorf("task.Value = %s", task.Value)
	}
}

func TestPublishEvent_PublisherError(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("nsqd unreachable")
	d := New(pub, testTopics())

	err := d.PublishEvent(context.Background(), event.Event{ID: "evt-1", Kind: classify.KindLike})
	if err == nil {
		t.Fatal("expected error from failing publisher")
	}
}

func TestPublishNotification_Preferences(t *testing.T) {
	tests := []struct {
		name  string
		prefs store.Preferences
		kind  string
		want  bool
	}{
		{"comment enabled", store.Preferences{NotifyComments: true}, "comment", true},
		{"comment disabled", store.Preferences{}, "comment", false},
		{"mention enabled", store.Preferences{NotifyMentions: true}, "mention", true},
		{"message enabled", store.Preferences{NotifyMessages: true}, "message", true},
		{"milestone enabled", store.Preferences{NotifyMilestones: true}, NotificationMilestone, true},
		{"like never notifies", store.Preferences{NotifyComments: true, NotifyMentions: true}, "like", false},
		{"unknown never notifies", store.Preferences{NotifyComments: true}, "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newFakePublisher()
			d := New(pub, testTopics())

			sent, err := d.PublishNotification(context.Background(), tt.prefs, event.Notification{
				AccountID: "acct-1",
				EventID:   "evt-1",
				Kind:      tt.kind,
			})
			if err != nil {
				t.Fatalf("PublishNotification() error: %v", err)
			}
			if sent != tt.want {
				t.Errorf("PublishNotification() sent = %v, want %v", sent, tt.want)
			}
			if got := len(pub.published["notifications"]); (got == 1) != tt.want {
				t.Errorf("notifications published = %d, want published=%v", got, tt.want)
			}
		})
	}
}

func TestPublishDeadLetter(t *testing.T) {
	pub := newFakePublisher()
	d := New(pub, testTopics())

	dl := event.NewDeadLetter(event.Task{EventID: "evt-9", Kind: "mention"}, 5, "platform timeout", "max attempts reached (5)")
	if err := d.PublishDeadLetter(dl); err != nil {
		t.Fatalf("PublishDeadLetter() error: %v", err)
	}

	msgs := pub.published["events_dlq"]
	if len(msgs) != 1 {
		t.Fatalf("published %d dead letters, want 1", len(msgs))
	}
	var got event.DeadLetter
	if err := json.Unmarshal(msgs[0], &got); err != nil {
		t.Fatalf("dead letter did not round-trip: %v", err)
	}
	if got.Type != event.DLQType {
		t.Errorf("Type = %q, want %q", got.Type, event.DLQType)
	}
	if got.Attempt != 5 || got.Task.EventID != "evt-9" {
		t.Errorf("unexpected dead letter: %+v", got)
	}
}
