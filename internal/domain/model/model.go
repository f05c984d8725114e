// Package model contains domain models passed between layers.
package model

import "time"

// Club is an organization that owns posts and events and that a viewer may follow.
type Club struct {
	ID             string `json:"id" yaml:"id" db:"id"`
	FollowersCount int    `json:"followers_count" yaml:"followers_count" db:"followers_count"`
}

// Event is a seat-limited activity optionally advertised by a post.
type Event struct {
	ID              string   `json:"id" yaml:"id" db:"id"`
	Category        Category `json:"category" yaml:"category" db:"category"`
	TotalSeats      int      `json:"total_seats" yaml:"total_seats" db:"total_seats"`
	RegisteredCount int      `json:"registered_count" yaml:"registered_count" db:"registered_count"`
}

// FillRatio returns RegisteredCount/TotalSeats. An event without seats
// counts as full. Overbooking is not clamped.
func (e Event) FillRatio() float64 {
	if e.TotalSeats <= 0 {
		return 1
	}
	return float64(e.RegisteredCount) / float64(e.TotalSeats)
}

// Post is a single feed item belonging to one club.
type Post struct {
	ID              string  `json:"id" yaml:"id" db:"id"`
	ClubID          string  `json:"club_id" yaml:"club_id" db:"club_id"`
	LinkedEventID   string  `json:"linked_event_id,omitempty" yaml:"linked_event_id" db:"linked_event_id"` // empty means no event
	EngagementScore float64 `json:"engagement_score" yaml:"engagement_score" db:"engagement_score"`
}

// HasEvent reports whether the post advertises an event.
func (p Post) HasEvent() bool { return p.LinkedEventID != "" }

// ViewerState is the personalization state of the user a feed is ranked for.
type ViewerState struct {
	ViewerID        string               `json:"viewer_id" yaml:"viewer_id"`
	FollowedClubIDs map[string]struct{}  `json:"-" yaml:"-"`
	InterestScore   map[Category]float64 `json:"interest_score" yaml:"interest_score"`
}

// NewViewerState builds a ViewerState from a list of followed club ids.
func NewViewerState(viewerID string, followed []string, interests map[Category]float64) ViewerState {
	v := ViewerState{
		ViewerID:        viewerID,
		FollowedClubIDs: make(map[string]struct{}, len(followed)),
		InterestScore:   make(map[Category]float64, len(interests)),
	}
	for _, id := range followed {
		v.FollowedClubIDs[id] = struct{}{}
	}
	for c, s := range interests {
		v.InterestScore[c] = s
	}
	return v
}

// Follows reports whether the viewer follows clubID.
func (v ViewerState) Follows(clubID string) bool {
	_, ok := v.FollowedClubIDs[clubID]
	return ok
}

// Affinity returns the viewer's interest in c, 0 when unknown.
func (v ViewerState) Affinity(c Category) float64 {
	return v.InterestScore[c]
}

// Followed returns the followed club ids in no particular order.
func (v ViewerState) Followed() []string {
	out := make([]string, 0, len(v.FollowedClubIDs))
	for id := range v.FollowedClubIDs {
		out = append(out, id)
	}
	return out
}

// RankedPost is a post with its resolved club, optional event and score.
type RankedPost struct {
	Post
	Club  Club    `json:"club"`
	Event *Event  `json:"event,omitempty"`
	Score float64 `json:"score"`
}

// Snapshot is an immutable bundle of everything the ranker reads besides the viewer.
type Snapshot struct {
	Posts  []Post  `json:"posts" yaml:"posts"`
	Clubs  []Club  `json:"clubs" yaml:"clubs"`
	Events []Event `json:"events" yaml:"events"`
}

// Table names a backend table that emits change notifications.
type Table string

// Tables that feed the ranker.
const (
	TablePosts   Table = "posts"
	TableClubs   Table = "clubs"
	TableEvents  Table = "events"
	TableViewers Table = "viewers"
)

// Op is the kind of row mutation a Change reports.
type Op string

// Row operations.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a live-update notification for one row of the backend.
type Change struct {
	ID    string    // unique id for idempotency
	Table Table     // table the row lives in
	Op    Op        // insert, update or delete
	RowID string    // primary key of the changed row; viewer id for TableViewers
	TS    time.Time // time the backend emitted the change
}

// Global reports whether the change can affect every viewer's feed.
func (c Change) Global() bool {
	return c.Table != TableViewers
}

// Valid reports whether table and op are known.
func (c Change) Valid() bool {
	switch c.Table {
	case TablePosts, TableClubs, TableEvents, TableViewers:
	default:
		return false
	}
	switch c.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return false
	}
	return c.RowID != ""
}
