package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehook/pulsehook/internal/sentiment"
)

// Message is a derived direct message sent to the account.
type Message struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	PlatformMessageID string          `json:"platform_message_id"`
	Sender            string          `json:"sender,omitempty"`
	Text              string          `json:"text"`
	SentimentScore    float64         `json:"sentiment_score"`
	SentimentLabel    sentiment.Label `json:"sentiment_label"`
	Priority          string          `json:"priority"`
	Responded         bool            `json:"responded"`
	AnalyzedAt        *time.Time      `json:"analyzed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Upsert is idempotent on (account_id, platform_message_id).
func (s *MessageStore) Upsert(ctx context.Context, m Message) (string, bool, error) {
	var (
		id      string
		created bool
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pulsehook.messages(account_id, platform_message_id, sender, text, sentiment_score, sentiment_label, priority, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT ON CONSTRAINT uq_messages_platform_id DO UPDATE
		SET text=EXCLUDED.text,
		    sentiment_score=EXCLUDED.sentiment_score,
		    sentiment_label=EXCLUDED.sentiment_label,
		    priority=EXCLUDED.priority,
		    analyzed_at=now(),
		    updated_at=now()
		RETURNING id, (xmax = 0)`,
		m.AccountID, m.PlatformMessageID, m.Sender, m.Text,
		m.SentimentScore, string(m.SentimentLabel), m.Priority,
	).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert message: %w", err)
	}
	return id, created, nil
}

// ListByAccount returns an account's direct messages, newest first.
func (s *MessageStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, platform_message_id, sender, text,
		       COALESCE(sentiment_score, 0.5), COALESCE(sentiment_label,'neutral'),
		       priority, responded, analyzed_at, created_at
		FROM pulsehook.messages
		WHERE account_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m        Message
			label    string
			analyzed sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &m.PlatformMessageID, &m.Sender,
			&m.Text, &m.SentimentScore, &label, &m.Priority, &m.Responded, &analyzed, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.SentimentLabel = sentiment.Label(label)
		if analyzed.Valid {
			t := analyzed.Time
			m.AnalyzedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
