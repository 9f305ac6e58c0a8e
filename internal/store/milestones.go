package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Milestone is an append-only achievement record, unique per
// (account, post, kind).
type Milestone struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	PostID    string    `json:"post_id"`
	Kind      string    `json:"kind"` // e.g. likes_100, comments_1k
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type MilestoneStore struct {
	pool *pgxpool.Pool
}

func NewMilestoneStore(pool *pgxpool.Pool) *MilestoneStore {
	return &MilestoneStore{pool: pool}
}

// Record inserts a milestone if it does not already exist. Returns true when
// a new row was created, false when the milestone had been reached before.
func (s *MilestoneStore) Record(ctx context.Context, m Milestone) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO pulsehook.milestones(account_id, post_id, kind, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uq_milestones DO NOTHING`,
		m.AccountID, m.PostID, m.Kind, m.Value)
	if err != nil {
		return false, fmt.Errorf("record milestone: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ListByAccount returns an account's milestones, newest first.
func (s *MilestoneStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]Milestone, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, post_id, kind, value, created_at
		FROM pulsehook.milestones
		WHERE account_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Milestone
	for rows.Next() {
		var m Milestone
		if err := rows.Scan(&m.ID, &m.AccountID, &m.PostID, &m.Kind, &m.Value, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
