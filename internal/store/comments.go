package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehook/pulsehook/internal/sentiment"
)

// Comment is a platform comment derived from a webhook event, immutable once
// analyzed except for the responded flag.
type Comment struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	PlatformCommentID string          `json:"platform_comment_id"`
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

// CommentStore persists derived comments.
type CommentStore struct {
	pool *pgxpool.Pool
}

func NewCommentStore(pool *pgxpool.Pool) *CommentStore {
	return &CommentStore{pool: pool}
}

// Upsert inserts a comment or, when the platform redelivers the same comment
// id for the same account, updates the existing row instead of duplicating.
// Returns the row id and whether a new row was created.
func (s *CommentStore) Upsert(ctx context.Context, c Comment) (string, bool, error) {
	var (
		id      string
		created bool
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pulsehook.comments(account_id, platform_comment_id, media_id, author, text, sentiment_score, sentiment_label, priority, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT ON CONSTRAINT uq_comments_platform_id DO UPDATE
		SET text=EXCLUDED.text,
		    sentiment_score=EXCLUDED.sentiment_score,
		    sentiment_label=EXCLUDED.sentiment_label,
		    priority=EXCLUDED.priority,
		    analyzed_at=now(),
		    updated_at=now()
		RETURNING id, (xmax = 0)`,
		c.AccountID, c.PlatformCommentID, c.MediaID, c.Author, c.Text,
		c.SentimentScore, string(c.SentimentLabel), c.Priority,
	).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert comment: %w", err)
	}
	return id, created, nil
}

// MarkResponded flips the downstream-workflow responded flag.
func (s *CommentStore) MarkResponded(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.comments SET responded=true, updated_at=now() WHERE id=$1`, id)
	return err
}

// ListByAccount returns an account's comments, newest first.
func (s *CommentStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, platform_comment_id, media_id, author, text,
		       COALESCE(sentiment_score, 0.5), COALESCE(sentiment_label,'neutral'),
		       priority, responded, analyzed_at, created_at
		FROM pulsehook.comments
		WHERE account_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var (
			c        Comment
			label    string
			analyzed sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &c.PlatformCommentID, &c.MediaID, &c.Author,
			&c.Text, &c.SentimentScore, &label, &c.Priority, &c.Responded, &analyzed, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.SentimentLabel = sentiment.Label(label)
		if analyzed.Valid {
			t := analyzed.Time
			c.AnalyzedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
