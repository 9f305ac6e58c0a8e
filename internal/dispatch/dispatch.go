package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsehook/pulsehook/internal/classify"
	"github.com/pulsehook/pulsehook/internal/config"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/metrics"
	"github.com/pulsehook/pulsehook/internal/store"
	"github.com/pulsehook/pulsehook/internal/tracing"
)

// Publisher is the producer seam; *nsq.Producer satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Dispatcher routes classified events to their processing topics and fans out
// notification tasks according to account preferences.
type Dispatcher struct {
	pub    Publisher
	topics config.NSQ
}

func New(pub Publisher, topics config.NSQ) *Dispatcher {
	return &Dispatcher{pub: pub, topics: topics}
}

// TopicFor maps an event kind to its processing topic. Comment, message and
// mention events get dedicated topics; everything else shares the generic one.
func (d *Dispatcher) TopicFor(kind classify.Kind) string {
	switch kind {
	case classify.KindComment:
		return d.topics.CommentsTopic
	case classify.KindMessage:
		return d.topics.MessagesTopic
	case classify.KindMention:
		return d.topics.MentionsTopic
	default:
		return d.topics.EventsTopic
	}
}

// PublishEvent builds and publishes the processing task for a stored event,
// propagating the current trace context into the task headers.
func (d *Dispatcher) PublishEvent(ctx context.Context, ev event.Event) error {
	task := event.Task{
		EventID:      ev.ID,
		AccountID:    ev.AccountID,
		Platform:     ev.Platform,
		Kind:         string(ev.Kind),
		Priority:     string(ev.Priority),
		Value:        ev.Payload,
		Attempt:      ev.Attempts,
		ReceivedAt:   time.Now().UTC().Format(time.RFC3339),
		TraceHeaders: tracing.PropagateTraceToNSQ(ctx),
	}
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	topic := d.TopicFor(ev.Kind)
	if err := d.pub.Publish(topic, b); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishNotification publishes a notification task when the account's
// preference flags ask for it. Returns whether a task was published.
func (d *Dispatcher) PublishNotification(ctx context.Context, prefs store.Preferences, n event.Notification) (bool, error) {
	if !wantsNotification(prefs, n.Kind) {
		return false, nil
	}
	n.At = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("marshal notification: %w", err)
	}
	if err := d.pub.Publish(d.topics.NotifyTopic, b); err != nil {
		return false, fmt.Errorf("publish %s: %w", d.topics.NotifyTopic, err)
	}
	metrics.RecordNotification(n.Kind)
	return true, nil
}

// PublishDeadLetter publishes the abandoned-event envelope to the DLQ topic.
func (d *Dispatcher) PublishDeadLetter(dl event.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := d.pub.Publish(d.topics.DLQTopic, b); err != nil {
		return fmt.Errorf("publish %s: %w", d.topics.DLQTopic, err)
	}
	return nil
}

// NotificationMilestone is the notification kind used for milestone
// achievements; it is not a webhook event kind.
const NotificationMilestone = "milestone"

func wantsNotification(prefs store.Preferences, kind string) bool {
	switch kind {
	case string(classify.KindComment):
		return prefs.NotifyComments
	case string(classify.KindMention):
		return prefs.NotifyMentions
	case string(classify.KindMessage):
		return prefs.NotifyMessages
	case NotificationMilestone:
		return prefs.NotifyMilestones
	default:
		return false
	}
}
