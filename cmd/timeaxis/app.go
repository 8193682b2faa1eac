package main

import (
	"context"
	"errors"
	"fmt"

	"timeaxis/internal/clock"
	"timeaxis/internal/config"
	"timeaxis/internal/errs"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/timeline"
	"timeaxis/internal/web"
)

// buildTimeline creates a timeline for cfg whose timers run on sched.
func buildTimeline(cfg *config.Config, sched clock.Scheduler) (*timeline.Timeline, error) {
	adapter, err := cfg.Adapter()
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	start, end, err := cfg.Window(adapter)
	if err != nil {
		return nil, err
	}
	rangeOpts, err := cfg.RangeOptions(adapter.Loc)
	if err != nil {
		return nil, err
	}
	tl, err := timeline.New(adapter, sched, start, end, cfg.Width, rangeOpts, cfg.TimelineOptions())
	if err != nil {
		return nil, err
	}
	specs, err := cfg.HiddenSpecs(adapter.Loc)
	if err != nil {
		return nil, err
	}
	if err := hiddenErr(tl.SetHidden(specs)); err != nil {
		return nil, err
	}
	return tl, nil
}

// hiddenErr drops the report of hidden specs skipped for an unknown repeat
// kind. The hidden set has logged them and applied the rest.
func hiddenErr(err error) error {
	var unknown *errs.UnknownRepeatKindError
	if errors.As(err, &unknown) {
		appLog.Warn("hidden dates skipped", "err", err.Error())
		return nil
	}
	return err
}

// applyConfig pushes a reloaded config into a running timeline. Timezone
// and week start are fixed at startup.
func applyConfig(ctx context.Context, loop *clock.Loop, tl *timeline.Timeline, srv *web.Server, prev, next *config.Config) error {
	if next.Timezone != prev.Timezone || next.WeekStart != prev.WeekStart {
		appLog.Warn("timezone and week_start changes need a restart",
			"timezone", next.Timezone,
			"week_start", next.WeekStart,
		)
	}
	loc, err := prev.Location()
	if err != nil {
		return err
	}
	rangeOpts, err := next.RangeOptions(loc)
	if err != nil {
		return err
	}
	specs, err := next.HiddenSpecs(loc)
	if err != nil {
		return err
	}

	// Layout options validate before anything changes, so a rejected
	// reload leaves the running config untouched.
	var applyErr error
	if err := loop.Do(ctx, func() {
		if applyErr = tl.SetOptions(next.TimelineOptions()); applyErr != nil {
			return
		}
		if applyErr = tl.Range().SetOptions(rangeOpts); applyErr != nil {
			return
		}
		if applyErr = hiddenErr(tl.SetHidden(specs)); applyErr != nil {
			return
		}
		tl.SetWidth(next.Width)
	}); err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}
	srv.SetConfig(next)
	return nil
}
