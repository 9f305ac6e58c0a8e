package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsehook/pulsehook/internal/platform"
	"github.com/pulsehook/pulsehook/internal/store"
)

func (s *Server) handleListEvents(c *fiber.Ctx) error {
	f := store.ListFilter{
		Status:    c.Query("status"),
		Kind:      c.Query("kind"),
		AccountID: c.Query("account_id"),
		Limit:     c.QueryInt("limit"),
	}
	events, err := s.events.List(c.Context(), f)
	if err != nil {
		s.log.WithContext(c.Context()).WithError(err).Error("list events")
		return jsonError(c, fiber.StatusInternalServerError, "list events failed")
	}
	return c.JSON(fiber.Map{"events": events})
}

func (s *Server) handleGetEvent(c *fiber.Ctx) error {
	ev, err := s.events.Get(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "event not found")
	}
	return c.JSON(ev)
}

// handleReplayEvent resets an event's attempts and publishes it again,
// regardless of its current status.
func (s *Server) handleReplayEvent(c *fiber.Ctx) error {
	ev, err := s.events.ResetForReplay(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "event not found")
	}
	if err := s.dispatcher.PublishEvent(c.Context(), ev); err != nil {
		s.log.WithContext(c.Context()).WithEvent(ev.ID).WithError(err).Error("replay dispatch")
		return jsonError(c, fiber.StatusBadGateway, "publish failed")
	}
	s.log.WithContext(c.Context()).WithEvent(ev.ID).WithKind(string(ev.Kind)).Info("event replayed")
	return c.JSON(fiber.Map{"status": "replayed", "event": ev})
}

func (s *Server) handleListAccounts(c *fiber.Ctx) error {
	accounts, err := s.accounts.List(c.Context())
	if err != nil {
		s.log.WithContext(c.Context()).WithError(err).Error("list accounts")
		return jsonError(c, fiber.StatusInternalServerError, "list accounts failed")
	}
	return c.JSON(fiber.Map{"accounts": accounts})
}

func (s *Server) handleGetAccount(c *fiber.Ctx) error {
	acct, err := s.accounts.Get(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrAccountNotFound) {
		return jsonError(c, fiber.StatusNotFound, "account not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "get account failed")
	}
	return c.JSON(acct)
}

type connectRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// handleConnectAccount runs the OAuth code exchange and upserts the account
// with its long-lived token and fetched profile.
func (s *Server) handleConnectAccount(c *fiber.Ctx) error {
	var req connectRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return jsonError(c, fiber.StatusBadRequest, "code and redirect_uri required")
	}

	ctx := c.Context()
	tok, err := s.ig.ExchangeCode(ctx, req.Code, req.RedirectURI)
	if err != nil {
		s.log.WithContext(ctx).WithPlatform("instagram").WithError(err).Error("oauth code exchange")
		return jsonError(c, fiber.StatusBadGateway, "platform token exchange failed")
	}

	profile, err := s.ig.GetProfile(ctx, tok.AccessToken)
	if err != nil {
		s.log.WithContext(ctx).WithPlatform("instagram").WithError(err).Error("profile fetch")
		return jsonError(c, fiber.StatusBadGateway, "platform profile fetch failed")
	}

	expires := tok.ExpiresAt
	id, err := s.accounts.Upsert(ctx, store.Account{
		Platform:       "instagram",
		PlatformUserID: profile.ID,
		Username:       profile.Username,
		AccessToken:    tok.AccessToken,
		TokenExpiresAt: &expires,
	})
	if err != nil {
		s.log.WithContext(ctx).WithPlatform("instagram").WithError(err).Error("upsert account")
		return jsonError(c, fiber.StatusInternalServerError, "store account failed")
	}

	s.log.WithContext(ctx).WithAccount(id).WithPlatform("instagram").
		WithField("username", profile.Username).
		Info("account connected")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "username": profile.Username})
}

// handleRefreshAccount extends the account's long-lived token. A platform
// failure marks the account errored and surfaces 502.
func (s *Server) handleRefreshAccount(c *fiber.Ctx) error {
	ctx := c.Context()
	acct, err := s.accounts.Get(ctx, c.Params("id"))
	if errors.Is(err, store.ErrAccountNotFound) {
		return jsonError(c, fiber.StatusNotFound, "account not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "get account failed")
	}

	tok, err := s.ig.RefreshToken(ctx, acct.AccessToken)
	if err != nil {
		msg := "token refresh failed"
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Body
		}
		if err := s.accounts.MarkError(ctx, acct.ID, msg); err != nil {
			s.log.WithContext(ctx).WithAccount(acct.ID).WithError(err).Error("mark account error")
		}
		s.log.WithContext(ctx).WithAccount(acct.ID).WithError(err).Error("token refresh")
		return jsonError(c, fiber.StatusBadGateway, "platform token refresh failed")
	}

	if err := s.accounts.UpdateToken(ctx, acct.ID, tok.AccessToken, tok.ExpiresAt); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "store token failed")
	}
	s.log.WithContext(ctx).WithAccount(acct.ID).Info("token refreshed")
	return c.JSON(fiber.Map{"status": "refreshed", "token_expires_at": tok.ExpiresAt})
}

func (s *Server) handleListComments(c *fiber.Ctx) error {
	out, err := s.comments.ListByAccount(c.Context(), c.Params("id"), c.QueryInt("limit"))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "list comments failed")
	}
	return c.JSON(fiber.Map{"comments": out})
}

func (s *Server) handleListMentions(c *fiber.Ctx) error {
	out, err := s.mentions.ListByAccount(c.Context(), c.Params("id"), c.QueryInt("limit"))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "list mentions failed")
	}
	return c.JSON(fiber.Map{"mentions": out})
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	out, err := s.messages.ListByAccount(c.Context(), c.Params("id"), c.QueryInt("limit"))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "list messages failed")
	}
	return c.JSON(fiber.Map{"messages": out})
}

func (s *Server) handleListMilestones(c *fiber.Ctx) error {
	out, err := s.milestones.ListByAccount(c.Context(), c.Params("id"), c.QueryInt("limit"))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "list milestones failed")
	}
	return c.JSON(fiber.Map{"milestones": out})
}

func (s *Server) handleListDLQ(c *fiber.Ctx) error {
	out, err := s.dlq.List(c.Context(), c.QueryInt("limit"))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "list dlq failed")
	}
	return c.JSON(fiber.Map{"dlq": out})
}
