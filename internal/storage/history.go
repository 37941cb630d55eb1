package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/internal/models"
)

// HistoryStore tracks every product an owner has added and how often.
type HistoryStore struct {
	q sqlx.ExtContext
}

// RecordUse inserts the pair with count 1 or bumps the existing count.
func (s *HistoryStore) RecordUse(ctx context.Context, ownerID int64, name string) error {
	query := s.q.Rebind(`
		INSERT INTO history (user_id, product_name, count)
		VALUES (?, ?, 1)
		ON CONFLICT (user_id, product_name)
		DO UPDATE SET count = history.count + 1
	`)

	if _, err := s.q.ExecContext(ctx, query, ownerID, name); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// Get returns a single history entry.
func (s *HistoryStore) Get(ctx context.Context, ownerID int64, name string) (models.HistoryEntry, error) {
	query := s.q.Rebind(`
		SELECT user_id, product_name, count
		FROM history
		WHERE user_id = ? AND product_name = ?
	`)

	var entry models.HistoryEntry
	err := sqlx.GetContext(ctx, s.q, &entry, query, ownerID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryEntry{}, ErrNotFound
	}
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("failed to get history entry: %w", err)
	}
	return entry, nil
}

// TopSuggestions returns up to limit product names ranked by use count
// (ties by name), skipping any name listed in exclude.
func (s *HistoryStore) TopSuggestions(ctx context.Context, ownerID int64, exclude []string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	// Excluded names can occupy at most len(exclude) of the top rows.
	query := s.q.Rebind(`
		SELECT product_name
		FROM history
		WHERE user_id = ?
		ORDER BY count DESC, product_name ASC
		LIMIT ?
	`)

	var names []string
	if err := sqlx.SelectContext(ctx, s.q, &names, query, ownerID, limit+len(exclude)); err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}
	out := make([]string, 0, limit)
	for _, name := range names {
		if _, ok := skip[name]; ok {
			continue
		}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
