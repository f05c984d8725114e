// Package cache stores ranked feeds per viewer so repeated reads skip the
// data sources and the ranker.
package cache

import (
	"context"

	"github.com/okian/campusfeed/internal/domain/model"
)

// Invalidation scopes reported to metrics.
const (
	scopeViewer = "viewer"
	scopeAll    = "all"
)

// Version identifies the invalidation state a feed was ranked under. It
// changes whenever the viewer's feed or every feed is invalidated.
type Version struct {
	Generation int64 `json:"gen"`
	Viewer     int64 `json:"viewer"`
}

// Cache holds ranked feeds keyed by viewer id.
type Cache interface {
	// Get returns the cached feed and true on a hit.
	Get(ctx context.Context, viewerID string) ([]model.RankedPost, bool, error)

	// Set stores the full ranked feed for a viewer.
	Set(ctx context.Context, viewerID string, feed []model.RankedPost) error

	// Version returns the viewer's current Version. Read it before loading
	// the data a feed is ranked from.
	Version(ctx context.Context, viewerID string) (Version, error)

	// SetIfVersion stores feed only when no invalidation touched the viewer
	// since v was read, and reports whether it did.
	SetIfVersion(ctx context.Context, viewerID string, v Version, feed []model.RankedPost) (bool, error)

	// Invalidate drops the viewer's feed.
	Invalidate(ctx context.Context, viewerID string) error

	// InvalidateAll drops every viewer's feed.
	InvalidateAll(ctx context.Context) error
}

func cloneFeed(feed []model.RankedPost) []model.RankedPost {
	out := make([]model.RankedPost, len(feed))
	copy(out, feed)
	for i := range out {
		if out[i].Event != nil {
			e := *out[i].Event
			out[i].Event = &e
		}
	}
	return out
}
