package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User        string
	Pass        string
	Host        string
	Port        string
	Name        string
	MaxConns    int32         // pgx pool size
	PingTimeout time.Duration // startup connectivity check budget
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	EventsTopic    string // generic webhook event processing topic
	CommentsTopic  string // comment processing topic
	MentionsTopic  string // mention processing topic
	MessagesTopic  string // direct message processing topic
	NotifyTopic    string // notification fan-out topic
	DLQTopic       string // dead letter topic for abandoned events
	WorkerChannel  string // NSQ channel name for workers
}

type Instagram struct {
	AppSecret    string // shared secret for X-Hub-Signature-256 verification
	VerifyToken  string // token echoed during GET subscription verification
	ClientID     string
	ClientSecret string
	GraphBaseURL string // e.g. https://graph.instagram.com
	OAuthBaseURL string // e.g. https://api.instagram.com
}

type Worker struct {
	BackoffSchedule []time.Duration // retry delay tiers indexed by attempt
	JitterMax       time.Duration   // random jitter added on top of each tier
	PublishDLQ      bool            // whether to publish abandoned events to the DLQ topic
	HTTPPort        string          // worker HTTP health/metrics port
	SweepInterval   time.Duration   // how often the DB retry sweep runs
	RetentionDays   int             // processed/abandoned events older than this are purged
}

type Auth struct {
	PublicKeyPEM string // RSA public key for admin API JWT validation
	Issuer       string
	Audience     string
}

type Config struct {
	AppName   string
	HTTPPort  string // :8080
	DB        DB
	NSQ       NSQ
	Instagram Instagram
	Worker    Worker
	Auth      Auth
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// defaultBackoff is the tiered retry schedule: 5 minutes, 30 minutes, then 2
// hours for every attempt after that.
var defaultBackoff = []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour}

func parseBackoffSchedule(schedule string) []time.Duration {
	if schedule == "" {
		return defaultBackoff
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}

	if len(durations) == 0 {
		// Fallback to default if parsing failed
		return defaultBackoff
	}

	return durations
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "pulsehook"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User:        getenv("DB_USER", "postgres"),
			Pass:        getenv("DB_PASS", "postgres"),
			Host:        getenv("DB_HOST", "postgres"),
			Port:        getenv("DB_PORT", "5432"),
			Name:        getenv("DB_NAME", "pulsehook"),
			MaxConns:    int32(getenvInt("DB_MAX_CONNS", 10)),
			PingTimeout: getenvDuration("DB_PING_TIMEOUT", 5*time.Second),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:    getenv("NSQ_EVENTS_TOPIC", "process_event"),
			CommentsTopic:  getenv("NSQ_COMMENTS_TOPIC", "process_comment"),
			MentionsTopic:  getenv("NSQ_MENTIONS_TOPIC", "process_mention"),
			MessagesTopic:  getenv("NSQ_MESSAGES_TOPIC", "process_message"),
			NotifyTopic:    getenv("NSQ_NOTIFY_TOPIC", "notifications"),
			DLQTopic:       getenv("NSQ_DLQ_TOPIC", "events_dlq"),
			WorkerChannel:  getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Instagram: Instagram{
			AppSecret:    getenv("IG_APP_SECRET", ""),
			VerifyToken:  getenv("IG_VERIFY_TOKEN", ""),
			ClientID:     getenv("IG_CLIENT_ID", ""),
			ClientSecret: getenv("IG_CLIENT_SECRET", ""),
			GraphBaseURL: getenv("IG_GRAPH_BASE_URL", "https://graph.instagram.com"),
			OAuthBaseURL: getenv("IG_OAUTH_BASE_URL", "https://api.instagram.com"),
		},
		Worker: Worker{
			BackoffSchedule: parseBackoffSchedule(getenv("BACKOFF_SCHEDULE", "")),
			JitterMax:       getenvDuration("BACKOFF_JITTER_MAX", time.Minute),
			PublishDLQ:      getenvBool("PUBLISH_DLQ_TOPIC", false),
			HTTPPort:        ":" + getenv("WORKER_HTTP_PORT", "8083"),
			SweepInterval:   getenvDuration("RETRY_SWEEP_INTERVAL", time.Minute),
			RetentionDays:   getenvInt("EVENT_RETENTION_DAYS", 30),
		},
		Auth: Auth{
			PublicKeyPEM: getenv("JWT_PUBLIC_KEY", ""),
			Issuer:       getenv("JWT_ISSUER", "pulsehook"),
			Audience:     getenv("JWT_AUDIENCE", "pulsehook-api"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
