package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehook/pulsehook/internal/sentiment"
)

// Mention is a derived mention of the account in someone else's content.
type Mention struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	PlatformMentionID string          `json:"platform_mention_id"`
	MediaID           string          `json:"media_id,omitempty"`
	Author            string          `json:"author,omitempty"`
	Text              string          `json:"text"`
	SentimentScore    float64         `json:"sentiment_score"`
	SentimentLabel    sentiment.Label `json:"sentiment_label"`
	Priority          string          `json:"priority"`
	Responded         bool            `json:"responded"`
	AnalyzedAt        *time.Time      `json:"analyzed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type MentionStore struct {
	pool *pgxpool.Pool
}

func NewMentionStore(pool *pgxpool.Pool) *MentionStore {
	return &MentionStore{pool: pool}
}

// Upsert is idempotent on (account_id, platform_mention_id).
func (s *MentionStore) Upsert(ctx context.Context, m Mention) (string, bool, error) {
	var (
		id      string
		created bool
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pulsehook.mentions(account_id, platform_mention_id, media_id, author, text, sentiment_score, sentiment_label, priority, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT ON CONSTRAINT uq_mentions_platform_id DO UPDATE
		SET text=EXCLUDED.text,
		    sentiment_score=EXCLUDED.sentiment_score,
		    sentiment_label=EXCLUDED.sentiment_label,
		    priority=EXCLUDED.priority,
		    analyzed_at=now(),
		    updated_at=now()
		RETURNING id, (xmax = 0)`,
		m.AccountID, m.PlatformMentionID, m.MediaID, m.Author, m.Text,
		m.SentimentScore, string(m.SentimentLabel), m.Priority,
	).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert mention: %w", err)
	}
	return id, created, nil
}

// ListByAccount returns an account's mentions, newest first.
func (s *MentionStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]Mention, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, platform_mention_id, media_id, author, text,
		       COALESCE(sentiment_score, 0.5), COALESCE(sentiment_label,'neutral'),
		       priority, responded, analyzed_at, created_at
		FROM pulsehook.mentions
		WHERE account_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mention
	for rows.Next() {
		var (
			m        Mention
			label    string
			analyzed sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.AccountID, &m.PlatformMentionID, &m.MediaID, &m.Author,
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
