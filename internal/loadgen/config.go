// Package loadgen drives a running campusfeed server with change
// notifications and checks the feeds it serves.
package loadgen

import "time"

// Defaults for Config.
const (
	DefaultChanges        = 1000
	DefaultDuplicateRatio = 0.1
	DefaultTimeout        = 10 * time.Second
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL        string        // base URL of the service
	Changes        int           // number of change notifications to send
	DuplicateRatio float64       // share of notifications that reuse an earlier id
	Viewers        []string      // viewers whose feeds are checked after the run
	Workers        int           // concurrent submitters
	Timeout        time.Duration // per-request timeout
	Settle         time.Duration // wait between submission and feed checks
	Seed           int64         // seed for the change generator
}

// Stats summarizes a load run.
type Stats struct {
	Generated      int           `json:"generated"`
	Accepted       int           `json:"accepted"`
	Duplicate      int           `json:"duplicate"`
	Throttled      int           `json:"throttled"`
	Failed         int           `json:"failed"`
	FeedsChecked   int           `json:"feeds_checked"`
	FeedsMissing   int           `json:"feeds_missing"`
	PostsExplained int           `json:"posts_explained"`
	Violations     []string      `json:"violations,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Change is the body of POST /changes.
type Change struct {
	ID    string `json:"id"`
	Table string `json:"table"`
	Op    string `json:"op"`
	RowID string `json:"row_id"`
	TS    string `json:"ts"`
}

// FeedPost is the subset of a ranked post the checks read.
type FeedPost struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Explanation is the subset of an explain response the checks read.
type Explanation struct {
	PostID string  `json:"post_id"`
	Score  float64 `json:"score"`
}

// ackResponse is the body returned by POST /changes.
type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}
