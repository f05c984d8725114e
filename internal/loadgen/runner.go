package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"github.com/okian/campusfeed/pkg/logger"
)

// ErrVerification is returned when a served feed breaks an ordering or
// scoring check.
var ErrVerification = errors.New("feed verification failed")

// explainPerFeed bounds how many posts of each feed are cross-checked.
const explainPerFeed = 3

// Run health-checks the server, submits generated changes, then verifies the
// feeds of cfg.Viewers. Progress is printed to progress when it is a terminal.
func Run(ctx context.Context, cfg Config, log logger.Logger, progress io.Writer) (Stats, error) {
	start := time.Now()
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("changes", cfg.Changes),
		logger.Int("workers", cfg.Workers),
		logger.Int("viewers", len(cfg.Viewers)),
	)
	if err := c.health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	changes := GenerateChanges(cfg.Changes, cfg.DuplicateRatio, cfg.Viewers, cfg.Seed)
	stats := Stats{Generated: len(changes)}
	submit(ctx, c, cfg.Workers, changes, &stats, progressWriter(progress))
	log.Info(ctx, "changes submitted",
		logger.Int("unique", uniqueIDs(changes)),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("throttled", stats.Throttled),
		logger.Int("failed", stats.Failed),
	)

	if cfg.Settle > 0 {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}

	for _, viewer := range cfg.Viewers {
		if err := verifyFeed(ctx, c, viewer, &stats); err != nil {
			return stats, err
		}
	}
	stats.Duration = time.Since(start)

	if len(stats.Violations) > 0 {
		for _, v := range stats.Violations {
			log.Error(ctx, "feed violation", logger.String("detail", v))
		}
		return stats, fmt.Errorf("%w: %d violations", ErrVerification, len(stats.Violations))
	}
	log.Info(ctx, "load run completed",
		logger.Int("feeds_checked", stats.FeedsChecked),
		logger.Int("posts_explained", stats.PostsExplained),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// progressWriter returns w when it is a terminal and nil otherwise.
func progressWriter(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return w
	}
	return nil
}

func submit(ctx context.Context, c *client, workers int, changes []Change, stats *Stats, progress io.Writer) {
	var (
		accepted, duplicate, throttled, failed, done atomic.Int64
		wg                                           sync.WaitGroup
	)
	jobs := make(chan Change, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				code, ack, err := c.postChange(ctx, ch)
				switch {
				case err != nil:
					failed.Add(1)
				case code == http.StatusAccepted:
					accepted.Add(1)
				case code == http.StatusOK && ack.Duplicate:
					duplicate.Add(1)
				case code == http.StatusTooManyRequests:
					throttled.Add(1)
				default:
					failed.Add(1)
				}
				if n := done.Add(1); progress != nil && n%100 == 0 {
					fmt.Fprintf(progress, "\rsubmitted %d/%d", n, len(changes))
				}
			}
		}()
	}

	// Duplicates must follow their original, so ids seen for the first time
	// are sent before any repeat of them.
	firsts, repeats := splitRepeats(changes)
	feed := func(batch []Change) {
		for _, ch := range batch {
			select {
			case <-ctx.Done():
				return
			case jobs <- ch:
			}
		}
	}
	feed(firsts)
	feed(repeats)
	close(jobs)
	wg.Wait()
	if progress != nil {
		fmt.Fprintln(progress)
	}

	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Throttled = int(throttled.Load())
	stats.Failed = int(failed.Load())
}

func splitRepeats(changes []Change) (firsts, repeats []Change) {
	seen := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		if _, ok := seen[ch.ID]; ok {
			repeats = append(repeats, ch)
			continue
		}
		seen[ch.ID] = struct{}{}
		firsts = append(firsts, ch)
	}
	return firsts, repeats
}

// verifyFeed checks that the feed is ordered by descending score and that
// the top posts' explanations add up to the served score.
func verifyFeed(ctx context.Context, c *client, viewer string, stats *Stats) error {
	code, posts, err := c.feed(ctx, viewer)
	if err != nil {
		return fmt.Errorf("feed %s: %w", viewer, err)
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		stats.FeedsMissing++
		return nil
	default:
		return &ErrStatus{Method: http.MethodGet, URL: "/feed/" + viewer, Code: code}
	}
	stats.FeedsChecked++

	for i := 1; i < len(posts); i++ {
		if posts[i].Score > posts[i-1].Score {
			stats.Violations = append(stats.Violations, fmt.Sprintf(
				"viewer %s: post %s (%.2f) ranked below %s (%.2f)",
				viewer, posts[i-1].ID, posts[i-1].Score, posts[i].ID, posts[i].Score))
		}
	}

	for i := 0; i < len(posts) && i < explainPerFeed; i++ {
		code, exp, err := c.explain(ctx, viewer, posts[i].ID)
		if err != nil {
			return fmt.Errorf("explain %s/%s: %w", viewer, posts[i].ID, err)
		}
		if code != http.StatusOK {
			continue
		}
		stats.PostsExplained++
		if exp.Score != posts[i].Score {
			stats.Violations = append(stats.Violations, fmt.Sprintf(
				"viewer %s: post %s served with %.2f but explained as %.2f",
				viewer, posts[i].ID, posts[i].Score, exp.Score))
		}
	}
	return nil
}
