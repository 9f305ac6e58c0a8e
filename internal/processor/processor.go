package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pulsehook/pulsehook/internal/classify"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/metrics"
	"github.com/pulsehook/pulsehook/internal/sentiment"
	"github.com/pulsehook/pulsehook/internal/store"
	"github.com/pulsehook/pulsehook/internal/tracing"
)

// Milestone thresholds checked against like and comment counts.
var milestoneThresholds = []struct {
	count int64
	label string
}{
	{100, "100"},
	{1000, "1k"},
	{10000, "10k"},
}

type commentStore interface {
	Upsert(ctx context.Context, c store.Comment) (string, bool, error)
}

type mentionStore interface {
	Upsert(ctx context.Context, m store.Mention) (string, bool, error)
}

type messageStore interface {
	Upsert(ctx context.Context, m store.Message) (string, bool, error)
}

type milestoneStore interface {
	Record(ctx context.Context, m store.Milestone) (bool, error)
}

type accountStore interface {
	Get(ctx context.Context, id string) (store.Account, error)
	MarkError(ctx context.Context, id, message string) error
}

type notifier interface {
	PublishNotification(ctx context.Context, prefs store.Preferences, n event.Notification) (bool, error)
}

// Processor executes the per-kind side effects of one task: derived rows,
// sentiment analysis, milestone detection and notification fan-out. Event
// status transitions stay with the caller, which owns the retry decision.
type Processor struct {
	Accounts   accountStore
	Comments   commentStore
	Mentions   mentionStore
	Messages   messageStore
	Milestones milestoneStore
	Notifier   notifier
	Log        *logging.Logger
	Now        func() time.Time
}

func New(accounts *store.AccountStore, comments *store.CommentStore, mentions *store.MentionStore,
	messages *store.MessageStore, milestones *store.MilestoneStore, notifier notifier, log *logging.Logger) *Processor {
	return &Processor{
		Accounts:   accounts,
		Comments:   comments,
		Mentions:   mentions,
		Messages:   messages,
		Milestones: milestones,
		Notifier:   notifier,
		Log:        log,
		Now:        time.Now,
	}
}

// Handle runs the handler for the task's kind. A nil return means the event is
// fully processed; an error means the attempt failed and may be retried.
func (p *Processor) Handle(ctx context.Context, task event.Task) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Handle")
	defer span.End()

	switch classify.Kind(task.Kind) {
	case classify.KindComment:
		return p.handleComment(ctx, task)
	case classify.KindMention:
		return p.handleMention(ctx, task)
	case classify.KindMessage:
		return p.handleMessage(ctx, task)
	case classify.KindLike, classify.KindMedia, classify.KindStory:
		return p.handleEngagement(ctx, task)
	case classify.KindError:
		return p.handleError(ctx, task)
	default:
		// Unknown fields are stored verbatim at ingest; nothing to derive.
		p.Log.WithContext(ctx).WithEvent(task.EventID).WithKind(task.Kind).Debug("no handler for kind, leaving payload as stored")
		return nil
	}
}

type commentChange struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

func (p *Processor) handleComment(ctx context.Context, task event.Task) error {
	var c commentChange
	if err := json.Unmarshal(task.Value, &c); err != nil {
		return fmt.Errorf("decode comment change: %w", err)
	}

	acct, ok, err := p.account(ctx, task)
	if err != nil || !ok {
		return err
	}

	score, label := sentiment.Analyze(c.Text)
	metrics.RecordSentiment(score)

	_, created, err := p.Comments.Upsert(ctx, store.Comment{
		AccountID:         acct.ID,
		PlatformCommentID: c.ID,
		MediaID:           c.Media.ID,
		Author:            c.From.Username,
		Text:              c.Text,
		SentimentScore:    score,
		SentimentLabel:    label,
		Priority:          task.Priority,
	})
	if err != nil {
		return fmt.Errorf("upsert comment: %w", err)
	}

	p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(acct.ID).WithKind(task.Kind).
		WithField("sentiment", string(label)).
		WithField("created", created).
		Info("comment processed")

	if created {
		return p.notify(ctx, acct, task, fmt.Sprintf("new %s comment from %s", label, c.From.Username))
	}
	return nil
}

type mentionChange struct {
	CommentID string `json:"comment_id"`
	MediaID   string `json:"media_id"`
	Text      string `json:"text"`
	From      struct {
		Username string `json:"username"`
	} `json:"from"`
}

func (p *Processor) handleMention(ctx context.Context, task event.Task) error {
	var m mentionChange
	if err := json.Unmarshal(task.Value, &m); err != nil {
		return fmt.Errorf("decode mention change: %w", err)
	}

	acct, ok, err := p.account(ctx, task)
	if err != nil || !ok {
		return err
	}

	platformID := m.CommentID
	if platformID == "" {
		platformID = m.MediaID
	}

	score, label := sentiment.Analyze(m.Text)
	metrics.RecordSentiment(score)

	_, created, err := p.Mentions.Upsert(ctx, store.Mention{
		AccountID:         acct.ID,
		PlatformMentionID: platformID,
		MediaID:           m.MediaID,
		Author:            m.From.Username,
		Text:              m.Text,
		SentimentScore:    score,
		SentimentLabel:    label,
		Priority:          task.Priority,
	})
	if err != nil {
		return fmt.Errorf("upsert mention: %w", err)
	}

	p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(acct.ID).WithKind(task.Kind).
		WithField("sentiment", string(label)).
		Info("mention processed")

	if created {
		return p.notify(ctx, acct, task, fmt.Sprintf("mentioned by %s", m.From.Username))
	}
	return nil
}

type messageChange struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
}

func (p *Processor) handleMessage(ctx context.Context, task event.Task) error {
	var m messageChange
	if err := json.Unmarshal(task.Value, &m); err != nil {
		return fmt.Errorf("decode message change: %w", err)
	}

	acct, ok, err := p.account(ctx, task)
	if err != nil || !ok {
		return err
	}

	score, label := sentiment.Analyze(m.Message.Text)
	metrics.RecordSentiment(score)

	_, created, err := p.Messages.Upsert(ctx, store.Message{
		AccountID:         acct.ID,
		PlatformMessageID: m.Message.MID,
		Sender:            m.Sender.ID,
		Text:              m.Message.Text,
		SentimentScore:    score,
		SentimentLabel:    label,
		Priority:          task.Priority,
	})
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(acct.ID).WithKind(task.Kind).
		WithField("sentiment", string(label)).
		Info("message processed")

	if created {
		return p.notify(ctx, acct, task, "new direct message")
	}
	return nil
}

type engagementChange struct {
	MediaID      string `json:"media_id"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
}

func (p *Processor) handleEngagement(ctx context.Context, task event.Task) error {
	var e engagementChange
	if err := json.Unmarshal(task.Value, &e); err != nil {
		return fmt.Errorf("decode engagement change: %w", err)
	}

	acct, ok, err := p.account(ctx, task)
	if err != nil || !ok {
		return err
	}
	if e.MediaID == "" {
		p.Log.WithContext(ctx).WithEvent(task.EventID).WithKind(task.Kind).Debug("engagement change without media id, skipping milestones")
		return nil
	}

	type counter struct {
		prefix string
		count  int64
	}
	for _, c := range []counter{{"likes", e.LikeCount}, {"comments", e.CommentCount}} {
		for _, th := range milestoneThresholds {
			if c.count < th.count {
				break
			}
			created, err := p.Milestones.Record(ctx, store.Milestone{
				AccountID: acct.ID,
				PostID:    e.MediaID,
				Kind:      c.prefix + "_" + th.label,
				Value:     th.count,
			})
			if err != nil {
				return fmt.Errorf("record milestone: %w", err)
			}
			if !created {
				continue
			}
			p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(acct.ID).
				WithField("milestone", c.prefix+"_"+th.label).
				WithField("post_id", e.MediaID).
				Info("milestone reached")
			if _, err := p.Notifier.PublishNotification(ctx, acct.Preferences, event.Notification{
				AccountID: acct.ID,
				EventID:   task.EventID,
				Kind:      "milestone",
				Priority:  task.Priority,
				Summary:   fmt.Sprintf("post %s reached %d %s", e.MediaID, th.count, c.prefix),
				At:        p.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				return fmt.Errorf("publish milestone notification: %w", err)
			}
		}
	}
	return nil
}

type errorChange struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (p *Processor) handleError(ctx context.Context, task event.Task) error {
	var e errorChange
	if err := json.Unmarshal(task.Value, &e); err != nil {
		return fmt.Errorf("decode error change: %w", err)
	}
	msg := e.Message
	if msg == "" {
		msg = "platform reported an unspecified error"
	}

	if task.AccountID != "" {
		if err := p.Accounts.MarkError(ctx, task.AccountID, msg); err != nil {
			return fmt.Errorf("mark account error: %w", err)
		}
	}
	p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(task.AccountID).WithKind(task.Kind).
		WithField("code", e.Code).
		Warnf("platform error event: %s", msg)
	return nil
}

// account resolves the task's account. A task without an account, or one whose
// account row has since disappeared, is processed as a no-op rather than
// retried forever.
func (p *Processor) account(ctx context.Context, task event.Task) (store.Account, bool, error) {
	if task.AccountID == "" {
		p.Log.WithContext(ctx).WithEvent(task.EventID).WithKind(task.Kind).Info("no account for event, skipping derivation")
		return store.Account{}, false, nil
	}
	acct, err := p.Accounts.Get(ctx, task.AccountID)
	if errors.Is(err, store.ErrAccountNotFound) {
		p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(task.AccountID).Warn("account no longer exists, skipping derivation")
		return store.Account{}, false, nil
	}
	if err != nil {
		return store.Account{}, false, fmt.Errorf("load account: %w", err)
	}
	return acct, true, nil
}

func (p *Processor) notify(ctx context.Context, acct store.Account, task event.Task, summary string) error {
	sent, err := p.Notifier.PublishNotification(ctx, acct.Preferences, event.Notification{
		AccountID: acct.ID,
		EventID:   task.EventID,
		Kind:      task.Kind,
		Priority:  task.Priority,
		Summary:   summary,
		At:        p.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if sent {
		p.Log.WithContext(ctx).WithEvent(task.EventID).WithAccount(acct.ID).WithKind(task.Kind).Debug("notification published")
	}
	return nil
}
