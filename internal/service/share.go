package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/storage"
)

// grants remembers which shared lists a viewer opened through a valid link.
// They live in memory and are dropped on restart or when the owner rotates.
type grants struct {
	mu      sync.RWMutex
	viewers map[int64]map[int64]struct{} // owner -> viewers
}

func newGrants() *grants {
	return &grants{viewers: make(map[int64]map[int64]struct{})}
}

func (g *grants) add(ownerID, viewerID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.viewers[ownerID]
	if !ok {
		set = make(map[int64]struct{})
		g.viewers[ownerID] = set
	}
	set[viewerID] = struct{}{}
}

func (g *grants) has(ownerID, viewerID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.viewers[ownerID][viewerID]
	return ok
}

func (g *grants) revoke(ownerID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.viewers, ownerID)
}

// CanAccess reports whether viewer may see and edit the owner's list.
func (s *Shopping) CanAccess(viewerID, ownerID int64) bool {
	return viewerID == ownerID || s.grants.has(ownerID, viewerID)
}

// ShareRef returns the reference placed after SharePrefix in the owner's link:
// the stored token (created on first use) or the owner ID in owner_id mode.
func (s *Shopping) ShareRef(ctx context.Context, ownerID int64) (string, error) {
	if s.shareMode == ShareModeOwnerID {
		return strconv.FormatInt(ownerID, 10), nil
	}
	ctx = logger.WithOwner(ctx, ownerID)
	token, created, err := s.store.Tokens.GetOrCreate(ctx, ownerID, s.newToken())
	if err != nil {
		return "", fmt.Errorf("share token: %w", err)
	}
	if created {
		s.metrics.Share("issued")
		logger.Info(ctx, "service.share", "share.issue",
			slog.String("status", "ok"),
			slog.String("share_mode", s.shareMode),
		)
	}
	return token, nil
}

// RotateShare replaces the owner's token and revokes grants obtained with the old one.
func (s *Shopping) RotateShare(ctx context.Context, ownerID int64) (string, error) {
	if s.shareMode != ShareModeToken {
		return "", ErrRotateUnsupported
	}
	ctx = logger.WithOwner(ctx, ownerID)
	token := s.newToken()
	if err := s.store.Tokens.Rotate(ctx, ownerID, token); err != nil {
		return "", fmt.Errorf("rotate share token: %w", err)
	}
	s.grants.revoke(ownerID)
	s.metrics.Share("rotated")
	logger.Info(ctx, "service.share", "share.rotate",
		slog.String("status", "ok"),
	)
	return token, nil
}

// OpenShare resolves a deep-link payload ("share_<ref>") for viewer and, on
// success, grants viewer access to the owner's list. Malformed or unknown
// references yield ErrInvalidShareRef.
func (s *Shopping) OpenShare(ctx context.Context, viewerID int64, payload string) (int64, error) {
	ref, ok := strings.CutPrefix(strings.TrimSpace(payload), SharePrefix)
	if !ok || ref == "" {
		return 0, s.invalidShare(ctx, viewerID, "malformed")
	}

	var ownerID int64
	switch s.shareMode {
	case ShareModeOwnerID:
		id, err := strconv.ParseInt(ref, 10, 64)
		if err != nil || id <= 0 {
			return 0, s.invalidShare(ctx, viewerID, "malformed")
		}
		ownerID = id
	default:
		id, err := s.store.Tokens.Resolve(ctx, ref)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, s.invalidShare(ctx, viewerID, "unknown")
		}
		if err != nil {
			return 0, fmt.Errorf("open share: %w", err)
		}
		ownerID = id
	}

	if ownerID != viewerID {
		s.grants.add(ownerID, viewerID)
	}
	s.metrics.Share("opened")
	logger.Info(logger.WithOwner(ctx, ownerID), "service.share", "share.open",
		slog.String("status", "ok"),
		slog.Int64("viewer_id", viewerID),
		slog.String("share_mode", s.shareMode),
	)
	return ownerID, nil
}

func (s *Shopping) invalidShare(ctx context.Context, viewerID int64, reason string) error {
	s.metrics.Share("invalid")
	logger.Info(ctx, "service.share", "share.open",
		slog.String("status", "fail"),
		slog.Int64("viewer_id", viewerID),
		slog.String("reason", reason),
		slog.String("share_mode", s.shareMode),
	)
	return ErrInvalidShareRef
}
