package loadgen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var (
	tables = []string{"posts", "clubs", "events", "viewers"}
	ops    = []string{"insert", "update", "delete"}
)

// GenerateChanges builds n change notifications. Roughly dupRatio of them
// reuse the id of an earlier one so the server's idempotency is exercised.
// Viewer changes target one of viewers when any are given.
func GenerateChanges(n int, dupRatio float64, viewers []string, seed int64) []Change {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // load generation only
	now := time.Now().UTC().Format(time.RFC3339)
	out := make([]Change, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && r.Float64() < dupRatio {
			out = append(out, out[r.Intn(len(out))])
			continue
		}
		table := tables[r.Intn(len(tables))]
		row := fmt.Sprintf("%s-%d", table[:len(table)-1], r.Intn(1000))
		if table == "viewers" && len(viewers) > 0 {
			row = viewers[r.Intn(len(viewers))]
		}
		out = append(out, Change{
			ID:    uuid.NewString(),
			Table: table,
			Op:    ops[r.Intn(len(ops))],
			RowID: row,
			TS:    now,
		})
	}
	return out
}

// uniqueIDs counts distinct ids in changes.
func uniqueIDs(changes []Change) int {
	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		seen[c.ID] = struct{}{}
	}
	return len(seen)
}
