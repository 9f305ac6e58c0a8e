package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehook/pulsehook/internal/auth"
	"github.com/pulsehook/pulsehook/internal/config"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/health"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/platform"
	"github.com/pulsehook/pulsehook/internal/store"
)

type eventStore interface {
	Insert(ctx context.Context, ev event.Event) error
	MarkDispatchFailed(ctx context.Context, id, lastErr string) error
	Get(ctx context.Context, id string) (event.Event, error)
	List(ctx context.Context, f store.ListFilter) ([]event.Event, error)
	ResetForReplay(ctx context.Context, id string) (event.Event, error)
}

type accountStore interface {
	Upsert(ctx context.Context, a store.Account) (string, error)
	Get(ctx context.Context, id string) (store.Account, error)
	FindByPlatformUser(ctx context.Context, platform, platformUserID string) (store.Account, error)
	List(ctx context.Context) ([]store.Account, error)
	UpdateToken(ctx context.Context, id, token string, expiresAt time.Time) error
	MarkError(ctx context.Context, id, message string) error
}

type publisher interface {
	PublishEvent(ctx context.Context, ev event.Event) error
}

type commentLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]store.Comment, error)
}

type mentionLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]store.Mention, error)
}

type messageLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]store.Message, error)
}

type milestoneLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]store.Milestone, error)
}

type dlqLister interface {
	List(ctx context.Context, limit int) ([]store.DLQEntry, error)
}

type tokenExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (platform.Token, error)
	RefreshToken(ctx context.Context, accessToken string) (platform.Token, error)
	GetProfile(ctx context.Context, accessToken string) (platform.Profile, error)
}

// Server carries the API's dependencies and owns route registration.
type Server struct {
	cfg        config.Config
	pool       *pgxpool.Pool
	events     eventStore
	accounts   accountStore
	comments   commentLister
	mentions   mentionLister
	messages   messageLister
	milestones milestoneLister
	dlq        dlqLister
	dispatcher publisher
	ig         tokenExchanger
	log        *logging.Logger
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, dispatcher publisher, ig tokenExchanger, log *logging.Logger) *Server {
	return &Server{
		cfg:        cfg,
		pool:       pool,
		events:     store.NewEventStore(pool),
		accounts:   store.NewAccountStore(pool),
		comments:   store.NewCommentStore(pool),
		mentions:   store.NewMentionStore(pool),
		messages:   store.NewMessageStore(pool),
		milestones: store.NewMilestoneStore(pool),
		dlq:        store.NewDLQStore(pool),
		dispatcher: dispatcher,
		ig:         ig,
		log:        log,
	}
}

// Router builds the fiber app. Webhook callbacks and health stay outside the
// JWT middleware; everything under /v1 requires a bearer token when a
// validator is configured.
func (s *Server) Router(validator *auth.JWTValidator) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               s.cfg.AppName,
		DisableStartupMessage: true,
	})

	app.Get("/healthz", health.FiberHandler(s.pool))

	app.Get("/webhooks/instagram", s.handleVerifyChallenge)
	app.Post("/webhooks/instagram", s.handleWebhook)

	v1 := app.Group("/v1")
	if validator != nil {
		v1.Use(validator.Middleware())
	}

	v1.Get("/events", s.handleListEvents)
	v1.Get("/events/:id", s.handleGetEvent)
	v1.Post("/events/:id/replay", s.handleReplayEvent)

	v1.Get("/accounts", s.handleListAccounts)
	v1.Get("/accounts/:id", s.handleGetAccount)
	v1.Post("/accounts/connect", s.handleConnectAccount)
	v1.Post("/accounts/:id/refresh", s.handleRefreshAccount)

	v1.Get("/accounts/:id/comments", s.handleListComments)
	v1.Get("/accounts/:id/mentions", s.handleListMentions)
	v1.Get("/accounts/:id/messages", s.handleListMessages)
	v1.Get("/accounts/:id/milestones", s.handleListMilestones)

	v1.Get("/dlq", s.handleListDLQ)

	return app
}

func jsonError(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
