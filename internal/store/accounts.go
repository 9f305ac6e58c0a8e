package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountStatus marks whether a connected account is usable.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountError  AccountStatus = "error"
)

// Preferences are the per-account notification flags, stored as JSON.
type Preferences struct {
	NotifyComments   bool `json:"notify_comments"`
	NotifyMentions   bool `json:"notify_mentions"`
	NotifyMessages   bool `json:"notify_messages"`
	NotifyMilestones bool `json:"notify_milestones"`
}

// Account is a connected social-platform account.
type Account struct {
	ID             string        `json:"id"`
	Platform       string        `json:"platform"`
	PlatformUserID string        `json:"platform_user_id"`
	Username       string        `json:"username"`
	AccessToken    string        `json:"-"` // never serialized out
	TokenExpiresAt *time.Time    `json:"token_expires_at,omitempty"`
	Status         AccountStatus `json:"status"`
	StatusMessage  string        `json:"status_message,omitempty"`
	Preferences    Preferences   `json:"preferences"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// AccountStore persists connected social accounts.
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Upsert creates or refreshes an account keyed by (platform, platform user
// id), returning its id. Reconnecting an errored account resets it to active.
func (s *AccountStore) Upsert(ctx context.Context, a Account) (string, error) {
	prefs, err := json.Marshal(a.Preferences)
	if err != nil {
		return "", fmt.Errorf("marshal preferences: %w", err)
	}
	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO pulsehook.social_accounts(platform, platform_user_id, username, access_token, token_expires_at, status, preferences)
		VALUES ($1, $2, $3, $4, $5, 'active', $6::jsonb)
		ON CONFLICT ON CONSTRAINT uq_accounts_platform_user DO UPDATE
		SET username=EXCLUDED.username,
		    access_token=EXCLUDED.access_token,
		    token_expires_at=EXCLUDED.token_expires_at,
		    status='active',
		    status_message=NULL,
		    updated_at=now()
		RETURNING id`,
		a.Platform, a.PlatformUserID, a.Username, a.AccessToken, a.TokenExpiresAt, string(prefs),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert account: %w", err)
	}
	return id, nil
}

// Get fetches an account by id.
func (s *AccountStore) Get(ctx context.Context, id string) (Account, error) {
	return s.one(ctx, `WHERE id=$1`, id)
}

// FindByPlatformUser resolves the account owning a webhook entry.
func (s *AccountStore) FindByPlatformUser(ctx context.Context, platform, platformUserID string) (Account, error) {
	return s.one(ctx, `WHERE platform=$1 AND platform_user_id=$2`, platform, platformUserID)
}

func (s *AccountStore) one(ctx context.Context, where string, args ...any) (Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, platform, platform_user_id, username, access_token, token_expires_at,
		       status, COALESCE(status_message,''), preferences::text, created_at, updated_at
		FROM pulsehook.social_accounts `+where, args...)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// List returns all accounts, newest first.
func (s *AccountStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, platform, platform_user_id, username, access_token, token_expires_at,
		       status, COALESCE(status_message,''), preferences::text, created_at, updated_at
		FROM pulsehook.social_accounts
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateToken stores a refreshed access token and expiry.
func (s *AccountStore) UpdateToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.social_accounts
		SET access_token=$2, token_expires_at=$3, status='active', status_message=NULL, updated_at=now()
		WHERE id=$1`, id, token, expiresAt)
	return err
}

// MarkError flags an account whose platform API calls are failing.
func (s *AccountStore) MarkError(ctx context.Context, id, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.social_accounts
		SET status='error', status_message=$2, updated_at=now()
		WHERE id=$1`, id, message)
	return err
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a      Account
		status string
		exp    sql.NullTime
		prefs  string
	)
	if err := row.Scan(&a.ID, &a.Platform, &a.PlatformUserID, &a.Username, &a.AccessToken,
		&exp, &status, &a.StatusMessage, &prefs, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	a.Status = AccountStatus(status)
	if exp.Valid {
		t := exp.Time
		a.TokenExpiresAt = &t
	}
	if prefs != "" {
		_ = json.Unmarshal([]byte(prefs), &a.Preferences)
	}
	return a, nil
}
