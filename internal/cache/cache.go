package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront-cart/internal/domain"
)

// SnapshotCache keeps the last authoritative cart of a member so a freshly
// started manager can render before its first resync completes.
type SnapshotCache interface {
	Get(ctx context.Context, memberID string) ([]domain.CartLine, error)
	Set(ctx context.Context, memberID string, lines []domain.CartLine) error
	Delete(ctx context.Context, memberID string) error
}

var ErrCacheMiss = errors.New("cache miss")
