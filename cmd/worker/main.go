package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsehook/pulsehook/internal/config"
	"github.com/pulsehook/pulsehook/internal/db"
	"github.com/pulsehook/pulsehook/internal/dispatch"
	"github.com/pulsehook/pulsehook/internal/event"
	"github.com/pulsehook/pulsehook/internal/health"
	"github.com/pulsehook/pulsehook/internal/logging"
	"github.com/pulsehook/pulsehook/internal/metrics"
	"github.com/pulsehook/pulsehook/internal/processor"
	"github.com/pulsehook/pulsehook/internal/store"
	"github.com/pulsehook/pulsehook/internal/tracing"
)

const retentionInterval = 6 * time.Hour

// maxRequeueDelay is nsqd's default --max-req-timeout. Backoff tiers longer
// than this ride the DB sweep instead of an NSQ requeue.
const maxRequeueDelay = time.Hour

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logging.New("pulsehook-worker")

	shutdownTracing, err := tracing.InitTracing(ctx, "pulsehook-worker")
	if err != nil {
		log.Plain().WithError(err).Warn("tracing init failed, continuing without traces")
	} else {
		defer shutdownTracing()
	}

	pool, err := db.Connect(ctx, cfg.DSN(), cfg.DB.MaxConns, cfg.DB.PingTimeout)
	if err != nil {
		log.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		log.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		log.Plain().WithError(err).Fatal("nsq producer failed")
	}
	defer prod.Stop()

	dispatcher := dispatch.New(prod, cfg.NSQ)
	events := store.NewEventStore(pool)
	proc := processor.New(
		store.NewAccountStore(pool),
		store.NewCommentStore(pool),
		store.NewMentionStore(pool),
		store.NewMessageStore(pool),
		store.NewMilestoneStore(pool),
		dispatcher,
		log,
	)

	w := &worker{
		events:     events,
		proc:       proc,
		backoff:    cfg.Worker.BackoffSchedule,
		jitterMax:  cfg.Worker.JitterMax,
		maxRequeue: maxRequeueDelay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		log:        log,
	}
	if cfg.Worker.PublishDLQ {
		w.dlq = dispatcher
	}

	topics := []string{
		cfg.NSQ.EventsTopic,
		cfg.NSQ.CommentsTopic,
		cfg.NSQ.MentionsTopic,
		cfg.NSQ.MessagesTopic,
	}
	consumers := make([]*nsq.Consumer, 0, len(topics))
	for _, topic := range topics {
		c, err := newConsumer(cfg, topic, w, log)
		if err != nil {
			log.Plain().WithError(err).WithField("topic", topic).Fatal("nsq consumer failed")
		}
		consumers = append(consumers, c)
	}

	go w.runRetrySweep(ctx, dispatcher, cfg.Worker.SweepInterval)
	go w.runRetentionCleaner(ctx, cfg.Worker.RetentionDays, retentionInterval)
	startBacklogMonitor(ctx, cfg, topics)

	log.Plain().Info("worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	log.Plain().Info("shutting down worker")
	cancel()
	for _, c := range consumers {
		c.Stop()
	}
	for _, c := range consumers {
		<-c.StopChan
	}
	_ = httpSrv.Shutdown(context.Background())
	log.Plain().Info("worker stopped")
}

// newConsumer builds one topic consumer. Requeue delays up to nsqd's cap are
// allowed; longer tiers never reach Requeue.
func newConsumer(cfg config.Config, topic string, w *worker, log *logging.Logger) (*nsq.Consumer, error) {
	conf := nsq.NewConfig()
	conf.MaxInFlight = 100
	conf.MaxAttempts = 0 // attempts are governed by the per-kind ceiling
	conf.MaxRequeueDelay = maxRequeueDelay

	consumer, err := nsq.NewConsumer(topic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		return nil, err
	}

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse()
		defer func() {
			if !m.HasResponded() {
				log.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		var t event.Task
		if err := json.Unmarshal(m.Body, &t); err != nil {
			log.Plain().WithError(err).WithField("topic", topic).Error("bad task payload")
			m.Finish() // terminal: don't retry bad payloads
			return nil
		}

		out := w.processTask(context.Background(), t)
		switch out.act {
		case actRequeue:
			// nsqd redelivers the original message body; the attempt count
			// in the database is authoritative on the next try.
			m.Requeue(out.delay)
		default:
			m.Finish()
		}
		return nil
	}))

	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		return nil, err
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		return nil, err
	}
	return consumer, nil
}

// startBacklogMonitor polls nsqd's stats endpoint and exports queue depths.
func startBacklogMonitor(ctx context.Context, cfg config.Config, topics []string) {
	go func() {
		log := logging.New("pulsehook-worker-monitor")
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		watched := make(map[string]bool, len(topics))
		for _, t := range topics {
			watched[t] = true
		}
		httpClient := &http.Client{Timeout: 5 * time.Second}
		nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				log.Plain().WithError(err).Error("nsq stats fetch failed")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				resp.Body.Close()
				log.Plain().WithError(err).Error("nsq stats decode failed")
				continue
			}
			resp.Body.Close()

			var backlog float64
			for _, topic := range stats.Topics {
				for _, channel := range topic.Channels {
					metrics.UpdateNSQTopicDepth(topic.Name, channel.Name, float64(channel.Depth))
					if watched[topic.Name] && channel.Name == cfg.NSQ.WorkerChannel {
						backlog += float64(channel.Depth)
					}
				}
			}
			metrics.UpdateWorkerBacklog(backlog)
		}
	}()
}
