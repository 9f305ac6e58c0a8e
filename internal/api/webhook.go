package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pulsehook/pulsehook/internal/classify"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/metrics"
	"github.com/pulsehook/pulsehook/internal/store"
	"github.com/pulsehook/pulsehook/internal/tracing"
	"github.com/pulsehook/pulsehook/internal/webhook"
)

// handleVerifyChallenge answers the platform's GET subscription handshake.
func (s *Server) handleVerifyChallenge(c *fiber.Ctx) error {
	challenge, ok := webhook.VerifyChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		s.cfg.Instagram.VerifyToken,
	)
	if !ok {
		return jsonError(c, fiber.StatusForbidden, "verification failed")
	}
	return c.SendString(challenge)
}

// handleWebhook ingests one signed delivery. Each entry/change is classified,
// stored and dispatched independently: a failure on one change is logged and
// never aborts its siblings, the platform always sees a coarse status code.
func (s *Server) handleWebhook(c *fiber.Ctx) error {
	ctx, span := tracing.StartSpan(c.Context(), "api.handleWebhook")
	defer span.End()

	body := c.Body()
	if err := webhook.VerifySignature(s.cfg.Instagram.AppSecret, body, c.Get(webhook.SignatureHeader)); err != nil {
		metrics.RecordWebhook("instagram", "unauthorized")
		s.log.WithContext(ctx).WithPlatform("instagram").WithError(err).Warn("webhook signature rejected")
		return jsonError(c, fiber.StatusUnauthorized, "invalid signature")
	}

	payload, err := webhook.ParsePayload(body)
	if err != nil {
		metrics.RecordWebhook("instagram", "malformed")
		s.log.WithContext(ctx).WithPlatform("instagram").WithError(err).Warn("webhook payload malformed")
		return jsonError(c, fiber.StatusBadRequest, "malformed payload")
	}

	for _, entry := range payload.Entry {
		accountID := s.lookupAccount(c, entry.ID)
		for _, change := range entry.Changes {
			kind := classify.KindForField(change.Field)
			priority := classify.PriorityFor(kind)
			if kind == classify.KindUnknown {
				s.log.WithContext(ctx).WithPlatform("instagram").
					WithField("field", change.Field).
					Warn("unknown change field, storing verbatim")
			}

			ev := event.Event{
				ID:         uuid.NewString(),
				AccountID:  accountID,
				Platform:   "instagram",
				Kind:       kind,
				Priority:   priority,
				Payload:    change.Value,
				OccurredAt: entry.OccurredAt(),
			}
			if err := s.events.Insert(ctx, ev); err != nil {
				s.log.WithContext(ctx).WithEvent(ev.ID).WithKind(string(kind)).WithError(err).
					Error("store webhook event")
				continue
			}
			metrics.RecordClassified(string(kind), string(priority))

			if err := s.dispatcher.PublishEvent(ctx, ev); err != nil {
				s.log.WithContext(ctx).WithEvent(ev.ID).WithKind(string(kind)).WithError(err).
					Error("dispatch webhook event")
				// Hands the event to the retry sweep, which re-publishes once
				// the broker is reachable. Publish failures never count
				// against the kind's processing-attempt ceiling.
				if err := s.events.MarkDispatchFailed(ctx, ev.ID, "dispatch: "+err.Error()); err != nil {
					s.log.WithContext(ctx).WithEvent(ev.ID).WithError(err).Error("mark event failed")
				}
			}
		}
	}

	metrics.RecordWebhook("instagram", "ok")
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) lookupAccount(c *fiber.Ctx, platformUserID string) string {
	if platformUserID == "" {
		return ""
	}
	acct, err := s.accounts.FindByPlatformUser(c.Context(), "instagram", platformUserID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return ""
	}
	if err != nil {
		s.log.WithContext(c.Context()).WithPlatform("instagram").WithError(err).Warn("account lookup failed")
		return ""
	}
	return acct.ID
}
