package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/okian/campusfeed/internal/domain/model"
)

// MemoryStore is an in-memory Store. Posts keep their insertion order so the
// ranker's tie-break is stable across calls. All reads return copies.
type MemoryStore struct {
	mu        sync.RWMutex
	postOrder []string
	posts     map[string]model.Post
	clubOrder []string
	clubs     map[string]model.Club
	events    map[string]model.Event
	eventIDs  []string
	viewers   map[string]model.ViewerState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:   make(map[string]model.Post),
		clubs:   make(map[string]model.Club),
		events:  make(map[string]model.Event),
		viewers: make(map[string]model.ViewerState),
	}
}

// NewMemoryStoreFromSnapshot seeds a MemoryStore with s and viewers.
func NewMemoryStoreFromSnapshot(s model.Snapshot, viewers ...model.ViewerState) (*MemoryStore, error) {
	m := NewMemoryStore()
	ctx := context.Background()
	for _, c := range s.Clubs {
		if err := m.UpsertClub(ctx, c); err != nil {
			return nil, err
		}
	}
	for _, e := range s.Events {
		if err := m.UpsertEvent(ctx, e); err != nil {
			return nil, err
		}
	}
	for _, p := range s.Posts {
		if err := m.UpsertPost(ctx, p); err != nil {
			return nil, err
		}
	}
	for _, v := range viewers {
		if err := m.PutViewer(ctx, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s id must not be empty", ErrInvalidRow, kind)
	}
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// UpsertPost inserts or replaces a post. Replacing keeps its position.
// Posts may reference clubs or events that do not exist yet.
func (m *MemoryStore) UpsertPost(_ context.Context, p model.Post) error {
	if err := requireID("post", p.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.ID]; !ok {
		m.postOrder = append(m.postOrder, p.ID)
	}
	m.posts[p.ID] = p
	return nil
}

// DeletePost removes a post. Returns ErrNotFound if it does not exist.
func (m *MemoryStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return fmt.Errorf("post %q: %w", id, ErrNotFound)
	}
	delete(m.posts, id)
	m.postOrder = removeID(m.postOrder, id)
	return nil
}

// UpsertClub inserts or replaces a club.
func (m *MemoryStore) UpsertClub(_ context.Context, c model.Club) error {
	if err := requireID("club", c.ID); err != nil {
		return err
	}
	if c.FollowersCount < 0 {
		return fmt.Errorf("%w: club %q has negative followers", ErrInvalidRow, c.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clubs[c.ID]; !ok {
		m.clubOrder = append(m.clubOrder, c.ID)
	}
	m.clubs[c.ID] = c
	return nil
}

// DeleteClub removes a club. Its posts stay and are dropped by the ranker.
func (m *MemoryStore) DeleteClub(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clubs[id]; !ok {
		return fmt.Errorf("club %q: %w", id, ErrNotFound)
	}
	delete(m.clubs, id)
	m.clubOrder = removeID(m.clubOrder, id)
	return nil
}

// UpsertEvent inserts or replaces an event. Overbooking is accepted.
func (m *MemoryStore) UpsertEvent(_ context.Context, e model.Event) error {
	if err := requireID("event", e.ID); err != nil {
		return err
	}
	if e.TotalSeats < 0 || e.RegisteredCount < 0 {
		return fmt.Errorf("%w: event %q has negative seats", ErrInvalidRow, e.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		m.eventIDs = append(m.eventIDs, e.ID)
	}
	m.events[e.ID] = e
	return nil
}

// DeleteEvent removes an event. Posts linking to it lose their event terms.
func (m *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	delete(m.events, id)
	m.eventIDs = removeID(m.eventIDs, id)
	return nil
}

// PutViewer stores a viewer's state, replacing any previous one.
func (m *MemoryStore) PutViewer(_ context.Context, v model.ViewerState) error {
	if err := requireID("viewer", v.ViewerID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewers[v.ViewerID] = copyViewer(v)
	return nil
}

// Follow makes viewerID follow clubID and bumps the club's follower count.
// Following twice is a no-op.
func (m *MemoryStore) Follow(_ context.Context, viewerID, clubID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[viewerID]
	if !ok {
		return fmt.Errorf("viewer %q: %w", viewerID, ErrNotFound)
	}
	c, ok := m.clubs[clubID]
	if !ok {
		return fmt.Errorf("club %q: %w", clubID, ErrNotFound)
	}
	if v.Follows(clubID) {
		return nil
	}
	v.FollowedClubIDs[clubID] = struct{}{}
	c.FollowersCount++
	m.clubs[clubID] = c
	return nil
}

// Unfollow reverses Follow. The follower count never drops below zero.
func (m *MemoryStore) Unfollow(_ context.Context, viewerID, clubID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[viewerID]
	if !ok {
		return fmt.Errorf("viewer %q: %w", viewerID, ErrNotFound)
	}
	if !v.Follows(clubID) {
		return nil
	}
	delete(v.FollowedClubIDs, clubID)
	if c, ok := m.clubs[clubID]; ok && c.FollowersCount > 0 {
		c.FollowersCount--
		m.clubs[clubID] = c
	}
	return nil
}

// ListPosts implements PostSource.
func (m *MemoryStore) ListPosts(_ context.Context) ([]model.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.postsLocked(), nil
}

// ListClubs implements ClubSource.
func (m *MemoryStore) ListClubs(_ context.Context) ([]model.Club, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clubsLocked(), nil
}

// ListEvents implements EventSource.
func (m *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsLocked(), nil
}

// Viewer implements ViewerSource.
func (m *MemoryStore) Viewer(_ context.Context, viewerID string) (model.ViewerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.viewers[viewerID]
	if !ok {
		return model.ViewerState{}, fmt.Errorf("viewer %q: %w", viewerID, ErrNotFound)
	}
	return copyViewer(v), nil
}

// Snapshot implements Store. The three lists are read under one lock.
func (m *MemoryStore) Snapshot(_ context.Context) (model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.Snapshot{
		Posts:  m.postsLocked(),
		Clubs:  m.clubsLocked(),
		Events: m.eventsLocked(),
	}, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Counts{
		Posts:   len(m.posts),
		Clubs:   len(m.clubs),
		Events:  len(m.events),
		Viewers: len(m.viewers),
	}, nil
}

func copyViewer(v model.ViewerState) model.ViewerState {
	interests := make(map[model.Category]float64, len(v.InterestScore))
	for c, s := range v.InterestScore {
		interests[c] = s
	}
	return model.NewViewerState(v.ViewerID, v.Followed(), interests)
}

func (m *MemoryStore) postsLocked() []model.Post {
	out := make([]model.Post, 0, len(m.postOrder))
	for _, id := range m.postOrder {
		out = append(out, m.posts[id])
	}
	return out
}

func (m *MemoryStore) clubsLocked() []model.Club {
	out := make([]model.Club, 0, len(m.clubOrder))
	for _, id := range m.clubOrder {
		out = append(out, m.clubs[id])
	}
	return out
}

func (m *MemoryStore) eventsLocked() []model.Event {
	out := make([]model.Event, 0, len(m.eventIDs))
	for _, id := range m.eventIDs {
		out = append(out, m.events[id])
	}
	return out
}
