package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsehook/pulsehook/internal/api"
	"github.com/pulsehook/pulsehook/internal/auth"
	"github.com/pulsehook/pulsehook/internal/config"
	"github.com/pulsehook/pulsehook/internal/database"
	"github.com/pulsehook/pulsehook/internal/db"
	"github.com/pulsehook/pulsehook/internal/dispatch"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/metrics"
	"github.com/pulsehook/pulsehook/internal/platform"
	"github.com/pulsehook/pulsehook/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	log := logging.New("pulsehook-api")
	ctx := context.Background()

	shutdownTracing, err := tracing.InitTracing(ctx, "pulsehook-api")
	if err != nil {
		log.Plain().WithError(err).Warn("tracing init failed, continuing without traces")
	} else {
		defer shutdownTracing()
	}

	if src := os.Getenv("MIGRATIONS_URL"); src != "" {
		if err := database.RunMigrations(src, cfg.DSN(), log); err != nil {
			log.Plain().WithError(err).Fatal("migrations failed")
		}
	}

	pool, err := db.Connect(ctx, cfg.DSN(), cfg.DB.MaxConns, cfg.DB.PingTimeout)
	if err != nil {
		log.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	nsqConf := nsq.NewConfig()
	prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsqConf)
	if err != nil {
		log.Plain().WithError(err).Fatal("nsq producer failed")
	}
	defer prod.Stop()

	dispatcher := dispatch.New(prod, cfg.NSQ)
	ig := platform.NewInstagramClient(cfg.Instagram)

	var validator *auth.JWTValidator
	if cfg.Auth.PublicKeyPEM != "" {
		validator, err = auth.NewJWTValidator(cfg.Auth.PublicKeyPEM, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			log.Plain().WithError(err).Fatal("jwt validator failed")
		}
	} else {
		log.Plain().Warn("JWT_PUBLIC_KEY not set, admin API is unauthenticated")
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	srv := api.NewServer(cfg, pool, dispatcher, ig, log)
	app := srv.Router(validator)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	go func() {
		log.Plain().WithField("addr", cfg.HTTPPort).Info("api listening")
		if err := app.Listen(cfg.HTTPPort); err != nil {
			log.Plain().WithError(err).Fatal("api serve failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	if err := app.Shutdown(); err != nil {
		log.Plain().WithError(err).Error("api shutdown")
	}
	log.Plain().Info("api stopped")
}
