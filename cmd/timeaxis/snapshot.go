package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"timeaxis/internal/clock"
	"timeaxis/internal/config"
	"timeaxis/internal/ics"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/timeline"
	"timeaxis/internal/web"
)

// newSnapshotCmd creates the snapshot subcommand.
func newSnapshotCmd(configPath *string) *cobra.Command {
	var (
		refresh    bool
		start, end string
		width      float64
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print one layout snapshot as JSON",
		Long:  "Build the timeline from the config, optionally fetch ICS sources once, and print the laid out window as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if start != "" {
				cfg.Start = config.TimeValue(start)
			}
			if end != "" {
				cfg.End = config.TimeValue(end)
			}
			if width > 0 {
				cfg.Width = width
			}

			snap, err := snapshot(cmd.Context(), cfg, refresh)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", true, "fetch ICS sources before laying out")
	cmd.Flags().StringVar(&start, "start", "", "window start (epoch ms, RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (epoch ms, RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().Float64Var(&width, "width", 0, "override the layout width in pixels")

	return cmd
}

func snapshot(ctx context.Context, cfg *config.Config, refresh bool) (timeline.Snapshot, error) {
	loop := clock.NewLoop()
	tl, err := buildTimeline(cfg, loop)
	if err != nil {
		return timeline.Snapshot{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	if refresh {
		srv := web.NewServer(cfg, tl, loop, ics.NewFetcher(nil))
		if err := srv.Refresh(ctx); err != nil {
			items, itemsErr := srv.Items(ctx)
			if itemsErr != nil {
				return timeline.Snapshot{}, itemsErr
			}
			if len(items) == 0 {
				return timeline.Snapshot{}, fmt.Errorf("refresh: %w", err)
			}
			appLog.Warn("some ICS sources failed", "err", err.Error())
		}
	}

	var (
		snap    timeline.Snapshot
		snapErr error
	)
	if err := loop.Do(ctx, func() { snap, snapErr = tl.Snapshot() }); err != nil {
		return timeline.Snapshot{}, err
	}
	return snap, snapErr
}
