package pipeline

import (
	"context"

	"github.com/bidwatch/bidcard/internal/store"
)

// DedupGate answers "has this detail URL been ingested before" using the
// store's announcement-URL uniqueness. There is no separate cache; the
// database is the single source of truth, so the gate survives restarts
// and works across keywords within one run for free.
type DedupGate struct {
	store store.Store
}

// NewDedupGate creates a gate over the given store.
func NewDedupGate(st store.Store) *DedupGate {
	return &DedupGate{store: st}
}

// AlreadyIngested returns the existing announcement id for url, if any.
func (g *DedupGate) AlreadyIngested(ctx context.Context, url string) (int64, bool, error) {
	return g.store.GetAnnouncementIDByURL(ctx, url)
}
