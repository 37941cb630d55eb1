// Package service implements the shopping list operations behind the bot.
package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/shopbot/internal/metrics"
	"github.com/m3rciful/shopbot/internal/storage"
)

var (
	// ErrEmptyProduct is returned when the product text is blank after trimming.
	ErrEmptyProduct = errors.New("empty product name")
	// ErrInvalidShareRef is returned for malformed or unknown share references.
	ErrInvalidShareRef = errors.New("invalid share reference")
	// ErrForbidden is returned when a viewer acts on a list it has no grant for.
	ErrForbidden = errors.New("forbidden")
	// ErrRotateUnsupported is returned when links are not token based.
	ErrRotateUnsupported = errors.New("share link rotation requires token mode")
)

const (
	// ShareModeToken shares lists through opaque rotatable tokens.
	ShareModeToken = "token"
	// ShareModeOwnerID shares lists through the owner's numeric ID.
	ShareModeOwnerID = "owner_id"

	// SuggestionLimit caps the quick picks offered when adding.
	SuggestionLimit = 10

	// SharePrefix starts every deep-link payload that opens a list.
	SharePrefix = "share_"
)

// Options configure the shopping service.
type Options struct {
	// ShareMode is ShareModeToken (default) or ShareModeOwnerID.
	ShareMode string
	// Serialize takes a per-owner lock around writes. Needed only when
	// updates are handled concurrently.
	Serialize bool
	Metrics   *metrics.Metrics
	// NewToken overrides share token generation in tests.
	NewToken func() string
}

// Shopping exposes list, history and sharing operations.
type Shopping struct {
	store     *storage.Store
	shareMode string
	serialize bool
	metrics   *metrics.Metrics
	newToken  func() string

	locks  *ownerLocks
	grants *grants
}

// New builds the service over store.
func New(store *storage.Store, opts Options) *Shopping {
	mode := strings.ToLower(strings.TrimSpace(opts.ShareMode))
	if mode != ShareModeOwnerID {
		mode = ShareModeToken
	}
	newToken := opts.NewToken
	if newToken == nil {
		newToken = NewShareToken
	}
	return &Shopping{
		store:     store,
		shareMode: mode,
		serialize: opts.Serialize,
		metrics:   opts.Metrics,
		newToken:  newToken,
		locks:     newOwnerLocks(),
		grants:    newGrants(),
	}
}

// ShareMode reports the active sharing mode.
func (s *Shopping) ShareMode() string {
	return s.shareMode
}

// NewShareToken returns 32 hex characters from a random (v4) UUID.
func NewShareToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Shopping) lock(ownerID int64) func() {
	if !s.serialize {
		return func() {}
	}
	return s.locks.Lock(ownerID)
}
