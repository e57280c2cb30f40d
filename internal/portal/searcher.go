package portal

import (
	"context"

	"crossref/internal/types"
)

// Searcher is the narrow surface the runner needs from the portal.
type Searcher interface {
	Start(ctx context.Context) error
	EnsureReady(ctx context.Context) error
	SearchWithVariations(ctx context.Context, name string) (types.OnlineResult, error)
	Stop() error
}

var _ Searcher = (*Client)(nil)
