package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/internal/models"
)

// ItemStore manages rows of the items table.
type ItemStore struct {
	q sqlx.ExtContext
}

// Add appends a product to the owner's list and returns the new item ID.
// Duplicate names are allowed.
func (s *ItemStore) Add(ctx context.Context, ownerID int64, name string) (int64, error) {
	query := s.q.Rebind(`
		INSERT INTO items (user_id, product_name)
		VALUES (?, ?)
		RETURNING id
	`)

	var id int64
	if err := sqlx.GetContext(ctx, s.q, &id, query, ownerID, name); err != nil {
		return 0, fmt.Errorf("failed to add item: %w", err)
	}
	return id, nil
}

// List returns the owner's items in insertion order.
func (s *ItemStore) List(ctx context.Context, ownerID int64) ([]models.Item, error) {
	query := s.q.Rebind(`
		SELECT id, user_id, product_name
		FROM items
		WHERE user_id = ?
		ORDER BY id ASC
	`)

	items := []models.Item{}
	if err := sqlx.SelectContext(ctx, s.q, &items, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// Delete removes one item of the owner. A missing item is not an error;
// the result reports whether a row was removed.
func (s *ItemStore) Delete(ctx context.Context, ownerID, itemID int64) (bool, error) {
	query := s.q.Rebind(`DELETE FROM items WHERE id = ? AND user_id = ?`)

	res, err := s.q.ExecContext(ctx, query, itemID, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete item: %w", err)
	}
	return n > 0, nil
}

// Clear removes every item of the owner in one statement and returns how many went.
func (s *ItemStore) Clear(ctx context.Context, ownerID int64) (int64, error) {
	query := s.q.Rebind(`DELETE FROM items WHERE user_id = ?`)

	res, err := s.q.ExecContext(ctx, query, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear items: %w", err)
	}
	return n, nil
}
