package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/internal/domain/ranking"
)

var errUnknownFormat = errors.New("unknown output format")

// rankedRow is one line of rank output.
type rankedRow struct {
	Rank int `json:"rank"`
	model.RankedPost
	Breakdown *ranking.Breakdown `json:"breakdown,omitempty"`
}

func newRankCmd() *cobra.Command {
	var (
		snapshotPath string
		viewerPath   string
		format       string
		explain      bool
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank a YAML snapshot for one viewer",
		Long: `Rank the posts of a YAML snapshot for the viewer described in a second
YAML file. No server or database is involved.

Examples:
  campusfeed rank --snapshot snapshot.yaml --viewer viewer.yaml
  campusfeed rank --snapshot snapshot.yaml --viewer viewer.yaml --explain --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := readFixture(snapshotPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			viewer, err := readViewer(viewerPath)
			if err != nil {
				return fmt.Errorf("read viewer: %w", err)
			}
			feed := ranking.RankSnapshot(fx.snapshot(), viewer)
			return printFeed(cmd.OutOrStdout(), buildRows(feed, viewer, explain), format)
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "YAML file with clubs, events and posts")
	cmd.Flags().StringVar(&viewerPath, "viewer", "", "YAML file with viewer_id, followed_club_ids and interest_score")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Show the score terms of every post")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("viewer")
	return cmd
}

func buildRows(feed []model.RankedPost, viewer model.ViewerState, explain bool) []rankedRow {
	rows := make([]rankedRow, 0, len(feed))
	for i, rp := range feed {
		row := rankedRow{Rank: i + 1, RankedPost: rp}
		if explain {
			b := ranking.Explain(rp.Post, rp.Club, rp.Event, viewer)
			row.Breakdown = &b
		}
		rows = append(rows, row)
	}
	return rows
}

func printFeed(w io.Writer, rows []rankedRow, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "table":
		return printTable(w, rows)
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

func printTable(w io.Writer, rows []rankedRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	explain := len(rows) > 0 && rows[0].Breakdown != nil

	header := "RANK\tPOST\tCLUB\tEVENT\tSCORE"
	if explain {
		header += "\tFOLLOW\tENGAGEMENT\tINTEREST\tSCARCITY"
	}
	fmt.Fprintln(tw, header)

	for _, r := range rows {
		event := "-"
		if r.Event != nil {
			event = r.Event.ID
		}
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%.1f", r.Rank, r.ID, r.Club.ID, event, r.Score)
		if r.Breakdown != nil {
			b := r.Breakdown
			line += fmt.Sprintf("\t%.1f\t%.1f\t%.1f\t%.1f", b.Follow, b.Engagement, b.Interest, b.Scarcity)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}
