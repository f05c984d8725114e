// Package ranking orders social posts for a viewer.
//
// The ranker is a pure function of its inputs: it performs no I/O, keeps no
// state between calls and may be invoked concurrently.
package ranking

import (
	"sort"

	"github.com/okian/campusfeed/internal/domain/model"
)

// Scoring weights. They are part of the observable contract and are not
// configurable at call time.
const (
	FollowBoost       = 500.0
	EngagementWeight  = 0.5
	InterestWeight    = 50.0
	UrgencyBonus      = 300.0
	FullPenalty       = -500.0
	UrgencyFillRatio  = 0.8
	CapacityFillRatio = 1.0
)

// Breakdown holds the individual terms that add up to a post's score.
type Breakdown struct {
	Follow     float64 `json:"follow"`
	Engagement float64 `json:"engagement"`
	Interest   float64 `json:"interest"`
	Scarcity   float64 `json:"scarcity"`
}

// Total sums the terms in the order the ranker applies them.
func (b Breakdown) Total() float64 {
	score := 0.0
	score += b.Follow
	score += b.Engagement
	score += b.Interest
	score += b.Scarcity
	return score
}

// Explain returns the score terms for post p owned by club c and linked to
// event e (nil when the post has no resolvable event).
func Explain(p model.Post, c model.Club, e *model.Event, v model.ViewerState) Breakdown {
	var b Breakdown
	if v.Follows(c.ID) {
		b.Follow = FollowBoost
	}
	b.Engagement = p.EngagementScore * EngagementWeight
	if e == nil {
		return b
	}
	b.Interest = v.Affinity(e.Category) * InterestWeight

	fill := e.FillRatio()
	switch {
	case fill > UrgencyFillRatio && fill < CapacityFillRatio:
		b.Scarcity = UrgencyBonus
	case fill >= CapacityFillRatio:
		b.Scarcity = FullPenalty
	}
	return b
}

// Score computes the ranking score of a single post.
func Score(p model.Post, c model.Club, e *model.Event, v model.ViewerState) float64 {
	return Explain(p, c, e, v).Total()
}

// Rank scores every post whose club resolves and returns them by descending
// score. Posts with equal scores keep their input order. Posts whose club is
// unknown are dropped; posts whose event is unknown are scored without the
// event terms.
func Rank(posts []model.Post, clubs []model.Club, events []model.Event, v model.ViewerState) []model.RankedPost {
	out := make([]model.RankedPost, 0, len(posts))
	if len(posts) == 0 || len(clubs) == 0 {
		return out
	}

	clubByID := make(map[string]model.Club, len(clubs))
	for _, c := range clubs {
		if _, dup := clubByID[c.ID]; !dup {
			clubByID[c.ID] = c
		}
	}
	eventByID := make(map[string]model.Event, len(events))
	for _, e := range events {
		if _, dup := eventByID[e.ID]; !dup {
			eventByID[e.ID] = e
		}
	}

	for _, p := range posts {
		c, ok := clubByID[p.ClubID]
		if !ok {
			continue
		}
		var ev *model.Event
		if p.HasEvent() {
			if e, ok := eventByID[p.LinkedEventID]; ok {
				ev = &e
			}
		}
		out = append(out, model.RankedPost{
			Post:  p,
			Club:  c,
			Event: ev,
			Score: Score(p, c, ev, v),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// RankSnapshot ranks the posts of s for viewer v.
func RankSnapshot(s model.Snapshot, v model.ViewerState) []model.RankedPost {
	return Rank(s.Posts, s.Clubs, s.Events, v)
}
