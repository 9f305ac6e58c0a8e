package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pulsehook/pulsehook/internal/classify"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/metrics"
	"github.com/pulsehook/pulsehook/internal/tracing"
)

type eventStatusStore interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastErr string) (int, error)
	MarkDispatchFailed(ctx context.Context, id, lastErr string) error
	MarkAbandoned(ctx context.Context, id, reason string) error
	ClaimDue(ctx context.Context, limit int) ([]event.Event, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeExpired(ctx context.Context, retentionDays int) (int64, error)
}

type taskHandler interface {
	Handle(ctx context.Context, t event.Task) error
}

type eventPublisher interface {
	PublishEvent(ctx context.Context, ev event.Event) error
}

type deadLetterPublisher interface {
	PublishDeadLetter(dl event.DeadLetter) error
}

type action int

const (
	actFinish action = iota
	actRequeue
)

// outcome tells the NSQ handler how to respond to the message.
type outcome struct {
	act   action
	delay time.Duration
}

// worker drives one task through a processing attempt and owns the
// retry/abandon decision.
type worker struct {
	events     eventStatusStore
	proc       taskHandler
	dlq        deadLetterPublisher // nil when DLQ topic publishing is off
	backoff    []time.Duration
	jitterMax  time.Duration
	maxRequeue time.Duration // delays past this are left to the DB sweep
	rng        *rand.Rand
	log        *logging.Logger
}

func (w *worker) processTask(ctx context.Context, t event.Task) outcome {
	ctx = tracing.ExtractTraceFromNSQ(ctx, t.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.processTask",
		attribute.String("event_id", t.EventID),
		attribute.String("kind", t.Kind),
		attribute.Int("attempt", t.Attempt),
	)
	defer span.End()

	if err := w.events.MarkProcessing(ctx, t.EventID); err != nil {
		w.log.WithContext(ctx).WithEvent(t.EventID).WithError(err).Error("mark processing failed")
	}

	start := time.Now()
	err := w.proc.Handle(ctx, t)
	latency := time.Since(start)

	if err == nil {
		if uErr := w.events.MarkProcessed(ctx, t.EventID); uErr != nil {
			w.log.WithContext(ctx).WithEvent(t.EventID).WithError(uErr).Error("mark processed failed")
			tracing.SetSpanError(ctx, uErr)
		}
		metrics.RecordProcessed(t.Kind, "processed", latency)
		return outcome{act: actFinish}
	}

	tracing.SetSpanError(ctx, err)
	attempts, mfErr := w.events.MarkFailed(ctx, t.EventID, err.Error())
	if mfErr != nil {
		w.log.WithContext(ctx).WithEvent(t.EventID).WithError(mfErr).Error("mark failed failed")
		// Can't trust the attempt count; send to the DLQ rather than loop.
		attempts = classify.MaxAttempts(classify.Kind(t.Kind))
	}

	reason := failureReason(err)
	metrics.RecordRetry(reason)
	metrics.RecordProcessed(t.Kind, "failed", latency)

	ceiling := classify.MaxAttempts(classify.Kind(t.Kind))
	if attempts >= ceiling {
		abandonReason := fmt.Sprintf("max attempts reached (%d), last error: %s", attempts, err)
		if aErr := w.events.MarkAbandoned(ctx, t.EventID, abandonReason); aErr != nil {
			w.log.WithContext(ctx).WithEvent(t.EventID).WithError(aErr).Error("mark abandoned failed")
			tracing.SetSpanError(ctx, aErr)
		}
		if w.dlq != nil {
			dl := event.NewDeadLetter(t, attempts, err.Error(), fmt.Sprintf("max attempts reached (%d)", attempts))
			if pErr := w.dlq.PublishDeadLetter(dl); pErr != nil {
				w.log.WithContext(ctx).WithEvent(t.EventID).WithError(pErr).Error("dlq publish failed")
			}
		}
		metrics.RecordDLQ()
		w.log.WithContext(ctx).WithEvent(t.EventID).WithKind(t.Kind).
			WithField("attempts", attempts).
			Warn("event abandoned")
		return outcome{act: actFinish}
	}

	delay := classify.Delay(attempts, w.backoff, w.jitterMax, w.rng)
	if w.maxRequeue > 0 && delay > w.maxRequeue {
		// nsqd caps requeue timeouts; the DB sweep republishes this one when
		// its tier elapses.
		w.log.WithContext(ctx).WithEvent(t.EventID).WithKind(t.Kind).WithFields(map[string]any{
			"attempt": attempts,
			"delay":   delay.String(),
		}).Info("retry deferred to sweep")
		return outcome{act: actFinish}
	}
	w.log.WithContext(ctx).WithEvent(t.EventID).WithKind(t.Kind).WithFields(map[string]any{
		"attempt": attempts,
		"delay":   delay.String(),
	}).Info("requeue event")
	return outcome{act: actRequeue, delay: delay}
}

// staleProcessingAge is how long an event may sit in processing before the
// sweep assumes its message was lost and releases it back to failed.
const staleProcessingAge = 15 * time.Minute

// runRetrySweep claims failed events whose backoff elapsed and re-publishes
// them. This covers events whose requeued NSQ message was lost, and events
// whose initial dispatch never reached the broker.
func (w *worker) runRetrySweep(ctx context.Context, pub eventPublisher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		w.sweepOnce(ctx, pub)
	}
}

func (w *worker) sweepOnce(ctx context.Context, pub eventPublisher) {
	if n, err := w.events.ReleaseStale(ctx, staleProcessingAge); err != nil {
		w.log.Plain().WithError(err).Error("retry sweep stale release failed")
	} else if n > 0 {
		w.log.Plain().WithField("released", n).Warn("released events stuck in processing")
	}

	due, err := w.events.ClaimDue(ctx, 50)
	if err != nil {
		w.log.Plain().WithError(err).Error("retry sweep claim failed")
		return
	}
	for _, ev := range due {
		if err := pub.PublishEvent(ctx, ev); err != nil {
			w.log.WithContext(ctx).WithEvent(ev.ID).WithError(err).Error("retry sweep publish failed")
			// Return it to failed without consuming a processing attempt;
			// the next sweep tick picks it up again.
			if mfErr := w.events.MarkDispatchFailed(ctx, ev.ID, "republish: "+err.Error()); mfErr != nil {
				w.log.WithContext(ctx).WithEvent(ev.ID).WithError(mfErr).Error("retry sweep mark failed")
			}
			continue
		}
		metrics.RecordRetry("sweep")
		w.log.WithContext(ctx).WithEvent(ev.ID).WithKind(string(ev.Kind)).
			WithField("attempts", ev.Attempts).
			Info("retry sweep republished event")
	}
}

// runRetentionCleaner purges terminal events past the retention window.
func (w *worker) runRetentionCleaner(ctx context.Context, retentionDays int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := w.events.PurgeExpired(ctx, retentionDays)
		if err != nil {
			w.log.Plain().WithError(err).Error("retention purge failed")
			continue
		}
		if n > 0 {
			w.log.Plain().WithField("purged", n).Info("retention purge done")
		}
	}
}

func failureReason(err error) string {
	if err == nil {
		return "none"
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout") || strings.Contains(e, "deadline"):
		return "timeout"
	case strings.Contains(e, "decode"):
		return "bad_payload"
	case strings.Contains(e, "connection"):
		return "connection"
	default:
		return "processing"
	}
}
