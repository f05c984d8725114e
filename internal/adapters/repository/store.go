// Package repository provides the data sources the feed ranker reads from.
package repository

import (
	"context"

	"github.com/okian/campusfeed/internal/domain/model"
)

// PostSource lists posts in a stable order.
type PostSource interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
}

// ClubSource lists clubs.
type ClubSource interface {
	ListClubs(ctx context.Context) ([]model.Club, error)
}

// EventSource lists events.
type EventSource interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// ViewerSource reads a viewer's personalization state.
type ViewerSource interface {
	// Viewer returns ErrNotFound if the viewer is unknown.
	Viewer(ctx context.Context, viewerID string) (model.ViewerState, error)
}

// Counts reports how many rows each source holds.
type Counts struct {
	Posts   int `json:"posts"`
	Clubs   int `json:"clubs"`
	Events  int `json:"events"`
	Viewers int `json:"viewers"`
}

// Store bundles every source the feed service needs.
type Store interface {
	PostSource
	ClubSource
	EventSource
	ViewerSource

	// Snapshot reads posts, clubs and events together.
	Snapshot(ctx context.Context) (model.Snapshot, error)

	// Count returns row counts for monitoring.
	Count(ctx context.Context) (Counts, error)
}

// LoadSnapshot reads the three ranker inputs from independent sources.
func LoadSnapshot(ctx context.Context, posts PostSource, clubs ClubSource, events EventSource) (model.Snapshot, error) {
	p, err := posts.ListPosts(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	c, err := clubs.ListClubs(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	e, err := events.ListEvents(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{Posts: p, Clubs: c, Events: e}, nil
}
