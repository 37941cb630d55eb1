package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/models"
	"github.com/m3rciful/shopbot/internal/storage"
)

const (
	// SourceText marks products typed by the user.
	SourceText = "text"
	// SourceSuggestion marks products picked from the history suggestions.
	SourceSuggestion = "suggestion"
)

// AddProduct normalizes raw and adds it to the owner's list, recording it in
// the owner's history within the same transaction. It returns the stored name.
func (s *Shopping) AddProduct(ctx context.Context, ownerID int64, raw string) (string, error) {
	name := NormalizeProduct(raw)
	if name == "" {
		return "", ErrEmptyProduct
	}
	if err := s.add(ctx, ownerID, name, SourceText); err != nil {
		return "", err
	}
	return name, nil
}

// AddSuggestion adds a product picked from the suggestions, stored exactly as given.
func (s *Shopping) AddSuggestion(ctx context.Context, ownerID int64, name string) error {
	if name == "" {
		return ErrEmptyProduct
	}
	return s.add(ctx, ownerID, name, SourceSuggestion)
}

func (s *Shopping) add(ctx context.Context, ownerID int64, name, source string) error {
	ctx = logger.WithOwner(ctx, ownerID)
	unlock := s.lock(ownerID)
	defer unlock()

	var itemID int64
	err := s.store.WithTx(ctx, func(tx *storage.Store) error {
		id, err := tx.Items.Add(ctx, ownerID, name)
		if err != nil {
			return err
		}
		itemID = id
		return tx.History.RecordUse(ctx, ownerID, name)
	})
	if err != nil {
		logger.Error(ctx, "service.items", "item.add",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("add product: %w", err)
	}

	s.metrics.ItemAdded(source)
	logger.Info(ctx, "service.items", "item.add",
		slog.String("status", "ok"),
		slog.Int64("item_id", itemID),
		slog.String("product", name),
		slog.String("source", source),
	)
	return nil
}

// List returns the owner's items in insertion order.
func (s *Shopping) List(ctx context.Context, ownerID int64) ([]models.Item, error) {
	items, err := s.store.Items.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ViewList returns the owner's items for viewer, who must be the owner or hold a share grant.
func (s *Shopping) ViewList(ctx context.Context, viewerID, ownerID int64) ([]models.Item, error) {
	if !s.CanAccess(viewerID, ownerID) {
		return nil, ErrForbidden
	}
	return s.List(ctx, ownerID)
}

// Delete removes an item from the owner's list on behalf of viewer.
// Removing an item that is already gone succeeds and reports false.
func (s *Shopping) Delete(ctx context.Context, viewerID, ownerID, itemID int64) (bool, error) {
	ctx = logger.WithOwner(ctx, ownerID)
	if !s.CanAccess(viewerID, ownerID) {
		logger.Warn(ctx, "service.items", "item.delete",
			slog.String("outcome", "denied"),
			slog.Int64("viewer_id", viewerID),
			slog.Int64("item_id", itemID),
		)
		return false, ErrForbidden
	}

	unlock := s.lock(ownerID)
	defer unlock()

	deleted, err := s.store.Items.Delete(ctx, ownerID, itemID)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	if deleted {
		s.metrics.ItemDeleted()
	}
	logger.Info(ctx, "service.items", "item.delete",
		slog.String("status", "ok"),
		slog.Int64("viewer_id", viewerID),
		slog.Int64("item_id", itemID),
		slog.Bool("deleted", deleted),
	)
	return deleted, nil
}

// Clear empties the owner's list. History is kept.
func (s *Shopping) Clear(ctx context.Context, ownerID int64) (int64, error) {
	ctx = logger.WithOwner(ctx, ownerID)
	unlock := s.lock(ownerID)
	defer unlock()

	n, err := s.store.Items.Clear(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("clear list: %w", err)
	}
	s.metrics.ListCleared()
	logger.Info(ctx, "service.items", "list.clear",
		slog.String("status", "ok"),
		slog.Int64("items", n),
	)
	return n, nil
}

// Suggestions returns the owner's most used products that are not already on the list.
func (s *Shopping) Suggestions(ctx context.Context, ownerID int64) ([]string, error) {
	items, err := s.store.Items.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	current := make([]string, 0, len(items))
	for _, it := range items {
		current = append(current, it.ProductName)
	}
	names, err := s.store.History.TopSuggestions(ctx, ownerID, current, SuggestionLimit)
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	logger.Debug(logger.WithOwner(ctx, ownerID), "service.history", "suggestions",
		slog.Int("suggestions", len(names)),
	)
	return names, nil
}
