package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TokenStore keeps at most one share token per owner.
type TokenStore struct {
	q sqlx.ExtContext
}

// Get returns the owner's current token.
func (s *TokenStore) Get(ctx context.Context, ownerID int64) (string, error) {
	query := s.q.Rebind(`SELECT token FROM share_tokens WHERE user_id = ?`)

	var token string
	err := sqlx.GetContext(ctx, s.q, &token, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get share token: %w", err)
	}
	return token, nil
}

// GetOrCreate stores candidate unless the owner already has a token, and
// returns whichever token is stored. created reports whether candidate was
// inserted. Concurrent callers converge on one value.
func (s *TokenStore) GetOrCreate(ctx context.Context, ownerID int64, candidate string) (token string, created bool, err error) {
	query := s.q.Rebind(`
		INSERT INTO share_tokens (user_id, token)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`)

	res, err := s.q.ExecContext(ctx, query, ownerID, candidate)
	if err != nil {
		return "", false, fmt.Errorf("failed to create share token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to create share token: %w", err)
	}
	token, err = s.Get(ctx, ownerID)
	if err != nil {
		return "", false, err
	}
	return token, n > 0, nil
}

// Resolve maps a token back to its owner.
func (s *TokenStore) Resolve(ctx context.Context, token string) (int64, error) {
	query := s.q.Rebind(`SELECT user_id FROM share_tokens WHERE token = ?`)

	var ownerID int64
	err := sqlx.GetContext(ctx, s.q, &ownerID, query, token)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve share token: %w", err)
	}
	return ownerID, nil
}

// Rotate replaces the owner's token; the previous one stops resolving at once.
func (s *TokenStore) Rotate(ctx context.Context, ownerID int64, token string) error {
	query := s.q.Rebind(`
		INSERT INTO share_tokens (user_id, token)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET token = excluded.token
	`)

	if _, err := s.q.ExecContext(ctx, query, ownerID, token); err != nil {
		return fmt.Errorf("failed to rotate share token: %w", err)
	}
	return nil
}
