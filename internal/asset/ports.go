package asset

import (
	"context"

	"assetrelay/internal/platform/roblox"
)

// Store persists serialized bundles keyed by user id.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Upstream is the subset of the marketplace client the aggregator needs.
type Upstream interface {
	SearchShirts(ctx context.Context, creatorName string) (*roblox.CatalogSearchResponse, error)
	ListInventory(ctx context.Context, userID string, page, perPage int) (*roblox.InventoryPage, error)
}
