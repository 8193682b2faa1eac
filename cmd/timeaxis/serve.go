package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"timeaxis/internal/clock"
	"timeaxis/internal/config"
	"timeaxis/internal/ics"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/web"
)

// newServeCmd creates the serve subcommand.
func newServeCmd(configPath *string) *cobra.Command {
	var (
		listen string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline API",
		Long:  "Load the config, refresh ICS sources on schedule and serve the timeline over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath, listen, watch)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")

	return cmd
}

func serve(ctx context.Context, configPath, listen string, watch bool) error {
	appLog.Info("timeaxis starting", "version", currentVersion())

	cfg, err := loadConfig(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	loop := clock.NewLoop()
	tl, err := buildTimeline(cfg, loop)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("event loop stopped", err)
		}
	}()

	srv := web.NewServer(cfg, tl, loop, ics.NewFetcher(nil))
	if err := srv.StartRefresh(ctx, cfg.RefreshCron); err != nil {
		return err
	}

	if watch {
		var mu sync.Mutex
		current := cfg
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			mu.Lock()
			defer mu.Unlock()
			if err := applyConfig(ctx, loop, tl, srv, current, next); err != nil {
				appLog.Error("config apply failed", err)
				return
			}
			current = next
		})
		if err != nil {
			appLog.Warn("config watch disabled", "err", err.Error())
		}
	}

	err = srv.ListenAndServe(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return err
	}
	appLog.Info("timeaxis exiting")
	return nil
}
